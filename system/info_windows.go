//go:build windows

package system

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func getKernelVersion() (string, error) {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber), nil
}

func getOperatingSystemName() (string, error) {
	return "Windows", nil
}

// IsElevated reports whether the process token is elevated. Changing the
// firewall policy requires it.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
