//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// Platform-specific path defaults for Windows

func programData() string {
	p := os.Getenv("PROGRAMDATA")
	if p == "" {
		p = "C:\\ProgramData"
	}
	return p
}

// GetDefaultConfigLocation returns the default configuration file path for Windows.
func GetDefaultConfigLocation() string {
	return filepath.Join(programData(), "fwauth", "config.yml")
}

// GetDefaultRootDirectory returns the default root directory for Windows.
func GetDefaultRootDirectory() string {
	return filepath.Join(programData(), "fwauth")
}

// GetDefaultLogDirectory returns the default log directory for Windows.
func GetDefaultLogDirectory() string {
	return filepath.Join(programData(), "fwauth", "logs")
}
