//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

// Platform-specific path defaults for Unix-like systems. The system wide
// locations are used when running as root, otherwise the user's own
// configuration and state directories.

// GetDefaultConfigLocation returns the default configuration file path.
func GetDefaultConfigLocation() string {
	if os.Geteuid() == 0 {
		return "/etc/fwauth/config.yml"
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fwauth", "config.yml")
	}
	return "/etc/fwauth/config.yml"
}

// GetDefaultRootDirectory returns the default root directory.
func GetDefaultRootDirectory() string {
	if os.Geteuid() == 0 {
		return "/var/lib/fwauth"
	}
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "state", "fwauth")
	}
	return "/var/lib/fwauth"
}

// GetDefaultLogDirectory returns the default log directory.
func GetDefaultLogDirectory() string {
	if os.Geteuid() == 0 {
		return "/var/log/fwauth"
	}
	return filepath.Join(GetDefaultRootDirectory(), "logs")
}
