// Package history keeps a local record of every attempt to register the
// application with the firewall. The authorizer itself only reports a
// boolean, so this is where the failing step and status code of past runs
// can be looked up later.
package history

import (
	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/internal/models"
)

// Recorder writes authorize results to the database.
type Recorder struct {
	db     *gorm.DB
	retain int
}

// NewRecorder returns a recorder that keeps the newest retain records. A
// retain value below one keeps everything.
func NewRecorder(db *gorm.DB, retain int) *Recorder {
	return &Recorder{db: db, retain: retain}
}

// Observe records res and logs, rather than returns, any failure. It has the
// signature of a firewall.Observer.
func (r *Recorder) Observe(res *firewall.Result) {
	if _, err := r.Record(res); err != nil {
		log.WithError(err).Warn("failed to record firewall authorization attempt")
	}
}

// Record stores res and prunes old records.
func (r *Recorder) Record(res *firewall.Result) (*models.Authorization, error) {
	stage := res.Reached
	if res.Succeeded() {
		stage = res.Stage
	}
	a := models.Authorization{
		ID:              uuid.NewString(),
		Backend:         res.Backend,
		RuleName:        res.Name,
		ApplicationPath: res.ApplicationPath,
		Success:         res.Succeeded(),
		Replaced:        res.Replaced,
		Stage:           stage.String(),
		StartedAt:       res.Started,
		DurationMs:      res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		op, code := firewall.StatusOf(res.Err)
		a.Step = op
		a.Code = firewall.FormatCode(code)
		a.Error = res.Err.Error()
	}
	if err := r.db.Create(&a).Error; err != nil {
		return nil, errors.Wrap(err, "history: failed to create record")
	}
	if err := r.prune(); err != nil {
		return &a, err
	}
	return &a, nil
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(limit int) ([]models.Authorization, error) {
	var out []models.Authorization
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "history: failed to fetch records")
	}
	return out, nil
}

func (r *Recorder) prune() error {
	if r.retain < 1 {
		return nil
	}
	var keep []string
	if err := r.db.Model(&models.Authorization{}).
		Order("created_at DESC").
		Limit(r.retain).
		Pluck("id", &keep).Error; err != nil {
		return errors.Wrap(err, "history: failed to select records to keep")
	}
	if len(keep) < r.retain {
		return nil
	}
	res := r.db.Where("id NOT IN ?", keep).Delete(&models.Authorization{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "history: failed to prune records")
	}
	if res.RowsAffected > 0 {
		log.WithField("count", res.RowsAffected).Debug("pruned firewall authorization history")
	}
	return nil
}
