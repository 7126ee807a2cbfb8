//go:build !linux && !windows

package system

import (
	"runtime"
)

func getKernelVersion() (string, error) {
	return "", nil
}

func getOperatingSystemName() (string, error) {
	return runtime.GOOS, nil
}
