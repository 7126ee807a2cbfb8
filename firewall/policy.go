package firewall

import "context"

// Names of the policy operations. Backends use them as the Op of the
// StatusError they return, so a failure can be traced back to the exact call.
const (
	OpOpen               = "OpenPolicy"
	OpRules              = "Policy.Rules"
	OpNewRule            = "Policy.NewRule"
	OpItem               = "Rules.Item"
	OpRemove             = "Rules.Remove"
	OpAdd                = "Rules.Add"
	OpSetName            = "Rule.SetName"
	OpSetApplicationName = "Rule.SetApplicationName"
	OpSetAction          = "Rule.SetAction"
	OpSetEnabled         = "Rule.SetEnabled"
	OpSetDirection       = "Rule.SetDirection"
)

// Service is a connection point to a firewall policy store.
type Service interface {
	// Name identifies the backend in logs and history records.
	Name() string

	// Open acquires a handle to the policy. The returned Policy must be
	// released by the caller.
	Open(ctx context.Context) (Policy, error)
}

// Policy is an open handle to the firewall policy.
type Policy interface {
	// Rules returns the collection of rules currently in the policy.
	Rules() (Rules, error)

	// NewRule creates a detached rule object that can be populated and
	// then submitted with Rules.Add.
	NewRule() (Rule, error)

	Release()
}

// Rules is a handle to the policy's rule collection.
type Rules interface {
	// Item looks up a rule by name. A missing rule is reported with an
	// error matching ErrNotFound.
	Item(name string) (Rule, error)

	// Remove deletes the rule registered under name.
	Remove(name string) error

	// Add submits a rule created by Policy.NewRule.
	Add(rule Rule) error

	Release()
}

// Rule is a handle to a single rule object.
type Rule interface {
	SetName(name string) error
	SetApplicationName(path string) error
	SetAction(action Action) error
	SetEnabled(enabled bool) error
	SetDirection(direction Direction) error

	Release()
}
