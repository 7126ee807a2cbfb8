// Package sqlfw emulates a firewall policy store in the local SQLite
// database. It lets the authorizer run end to end on hosts that have no
// Windows Firewall, with the same semantics: names are not unique, a lookup
// returns the first match and removal deletes every rule with the name.
package sqlfw

import (
	"context"
	"path/filepath"

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/internal/models"
)

// Service is a policy store backed by a gorm database.
type Service struct {
	db *gorm.DB
}

var _ firewall.Service = (*Service)(nil)

// New returns a policy store using db. The schema must already be migrated,
// see database.Open.
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Name() string {
	return "sqlite"
}

func (s *Service) Open(ctx context.Context) (firewall.Policy, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, firewall.Unavailable(firewall.OpOpen, firewall.CodeFail, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, firewall.Unavailable(firewall.OpOpen, firewall.CodeFail, errors.WithMessage(err, "ping database"))
	}
	return &policy{db: s.db.WithContext(ctx)}, nil
}

type policy struct {
	db *gorm.DB
}

func (p *policy) Rules() (firewall.Rules, error) {
	if !p.db.Migrator().HasTable(&models.FirewallRule{}) {
		return nil, firewall.Unavailable(firewall.OpRules, firewall.CodeFileNotFound, errors.New("firewall_rules table does not exist"))
	}
	return &rules{db: p.db}, nil
}

func (p *policy) NewRule() (firewall.Rule, error) {
	return &rule{row: models.FirewallRule{
		Type:      models.FirewallRuleTypeBlock,
		Direction: models.FirewallRuleDirectionIn,
	}}, nil
}

func (p *policy) Release() {}

type rules struct {
	db *gorm.DB
}

func (r *rules) Item(name string) (firewall.Rule, error) {
	var row models.FirewallRule
	err := r.db.Where("name = ?", name).Order("id ASC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, firewall.NotFound(firewall.OpItem, firewall.CodeFileNotFound)
		}
		return nil, firewall.NotFound(firewall.OpItem, firewall.CodeFail)
	}
	return &rule{row: row}, nil
}

func (r *rules) Remove(name string) error {
	res := r.db.Where("name = ?", name).Delete(&models.FirewallRule{})
	if res.Error != nil {
		return firewall.Rejected(firewall.OpRemove, firewall.CodeFail, res.Error)
	}
	if res.RowsAffected == 0 {
		return firewall.Rejected(firewall.OpRemove, firewall.CodeFileNotFound, errors.Errorf("no rule named %q", name))
	}
	return nil
}

func (r *rules) Add(fr firewall.Rule) error {
	nr, ok := fr.(*rule)
	if !ok {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule was not created by the sqlite backend"))
	}
	if nr.row.ID != 0 {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule is already part of the policy"))
	}
	if nr.row.Name == "" {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeInvalidArg, errors.New("rule has no name"))
	}
	row := nr.row
	if err := r.db.Create(&row).Error; err != nil {
		return firewall.Rejected(firewall.OpAdd, firewall.CodeFail, err)
	}
	return nil
}

func (r *rules) Release() {}

// rule is a detached copy of a row. Setters only change the copy.
type rule struct {
	row models.FirewallRule
}

func (r *rule) SetName(name string) error {
	if name == "" {
		return firewall.Rejected(firewall.OpSetName, firewall.CodeInvalidArg, errors.New("name cannot be empty"))
	}
	r.row.Name = name
	return nil
}

func (r *rule) SetApplicationName(path string) error {
	if !filepath.IsAbs(path) {
		return firewall.Rejected(firewall.OpSetApplicationName, firewall.CodeInvalidArg, errors.Errorf("%q is not an absolute path", path))
	}
	r.row.ApplicationName = path
	return nil
}

func (r *rule) SetAction(action firewall.Action) error {
	switch action {
	case firewall.ActionAllow:
		r.row.Type = models.FirewallRuleTypeAllow
	case firewall.ActionBlock:
		r.row.Type = models.FirewallRuleTypeBlock
	default:
		return firewall.Rejected(firewall.OpSetAction, firewall.CodeInvalidArg, errors.Errorf("unknown %s", action))
	}
	return nil
}

func (r *rule) SetEnabled(enabled bool) error {
	r.row.Enabled = enabled
	return nil
}

func (r *rule) SetDirection(direction firewall.Direction) error {
	switch direction {
	case firewall.DirectionInbound:
		r.row.Direction = models.FirewallRuleDirectionIn
	case firewall.DirectionOutbound:
		r.row.Direction = models.FirewallRuleDirectionOut
	default:
		return firewall.Rejected(firewall.OpSetDirection, firewall.CodeInvalidArg, errors.Errorf("unknown %s", direction))
	}
	return nil
}

func (r *rule) Release() {}

// Definition converts a stored row back into a rule definition.
func Definition(row models.FirewallRule) firewall.Definition {
	def := firewall.Definition{
		Name:            row.Name,
		ApplicationPath: row.ApplicationName,
		Action:          firewall.ActionBlock,
		Direction:       firewall.DirectionInbound,
		Enabled:         row.Enabled,
	}
	if row.Type == models.FirewallRuleTypeAllow {
		def.Action = firewall.ActionAllow
	}
	if row.Direction == models.FirewallRuleDirectionOut {
		def.Direction = firewall.DirectionOutbound
	}
	return def
}
