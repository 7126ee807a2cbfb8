//go:build !windows

package netfw

import (
	"context"
	"runtime"

	"emperror.dev/errors"

	"github.com/priyxstudio/fwauth/firewall"
)

// Open always fails outside of Windows.
func (s *Service) Open(context.Context) (firewall.Policy, error) {
	return nil, firewall.Unavailable(
		firewall.OpOpen,
		firewall.CodeNotImplemented,
		errors.Errorf("windows firewall is not available on %s", runtime.GOOS),
	)
}
