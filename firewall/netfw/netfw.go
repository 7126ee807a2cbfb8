// Package netfw talks to Windows Firewall through the INetFwPolicy2 and
// INetFwRule automation objects.
package netfw

import "github.com/priyxstudio/fwauth/firewall"

// Service connects to the Windows Firewall policy of the local machine.
type Service struct{}

var _ firewall.Service = (*Service)(nil)

func New() *Service {
	return &Service{}
}

func (s *Service) Name() string {
	return "windows"
}
