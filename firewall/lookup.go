package firewall

import (
	"context"

	"emperror.dev/errors"
)

// Exists reports whether a rule named name is registered in the policy.
func Exists(ctx context.Context, service Service, name string) (bool, error) {
	policy, err := service.Open(ctx)
	if err != nil {
		return false, err
	}
	defer policy.Release()

	rules, err := policy.Rules()
	if err != nil {
		return false, err
	}
	defer rules.Release()

	rule, err := rules.Item(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rule.Release()
	return true, nil
}
