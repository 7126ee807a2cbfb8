package models

import (
	"time"
)

// Authorization is the record of a single attempt to register the
// application with the firewall.
type Authorization struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	Backend         string `gorm:"not null" json:"backend"`
	RuleName        string `gorm:"index;not null" json:"rule_name"`
	ApplicationPath string `gorm:"not null" json:"application_path"`

	Success  bool `json:"success"`
	Replaced bool `json:"replaced"`

	// Stage is "done" for a successful attempt. For a failed one it is the
	// last stage completed before the failure.
	Stage string `json:"stage"`

	// Step and Code identify the failing policy call, if any.
	Step  string `json:"step,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `gorm:"type:text" json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// TableName specifies the table name for GORM
func (Authorization) TableName() string {
	return "authorizations"
}
