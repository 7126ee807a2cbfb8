package models

import (
	"time"
)

// FirewallRuleType represents the action of a firewall rule
type FirewallRuleType string

const (
	FirewallRuleTypeAllow FirewallRuleType = "allow"
	FirewallRuleTypeBlock FirewallRuleType = "block"
)

// FirewallRuleDirection represents the traffic direction of a firewall rule
type FirewallRuleDirection string

const (
	FirewallRuleDirectionIn  FirewallRuleDirection = "in"
	FirewallRuleDirectionOut FirewallRuleDirection = "out"
)

// FirewallRule is a rule of the emulated firewall policy. Names are not
// unique, the same way they are not unique in Windows Firewall.
type FirewallRule struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Name is the rule identity used for lookups and removal
	Name string `gorm:"index;not null" json:"name"`

	// Absolute path of the executable the rule applies to
	ApplicationName string `gorm:"not null" json:"application_name"`

	// Type of rule: "allow" or "block"
	Type FirewallRuleType `gorm:"not null" json:"type"`

	// Direction of traffic: "in" or "out"
	Direction FirewallRuleDirection `gorm:"not null" json:"direction"`

	Enabled bool `gorm:"not null" json:"enabled"`
}

// TableName specifies the table name for GORM
func (FirewallRule) TableName() string {
	return "firewall_rules"
}
