package system

import (
	"runtime"
)

// Version is the version of the binary, set at build time with
// -ldflags "-X github.com/priyxstudio/fwauth/system.Version=...".
var Version = "develop"

// ShortName is the application's short name and the default firewall rule
// identity. Applications embedding the authorizer override it at build time
// with -ldflags "-X github.com/priyxstudio/fwauth/system.ShortName=...".
var ShortName = "fwauth"

type Information struct {
	Version       string `json:"version"`
	ShortName     string `json:"short_name"`
	Architecture  string `json:"architecture"`
	KernelVersion string `json:"kernel_version"`
	OS            string `json:"os"`
	OSType        string `json:"os_type"`
	Elevated      bool   `json:"elevated"`
}

func GetSystemInformation() (*Information, error) {
	kernelVersion, err := getKernelVersion()
	if err != nil {
		return nil, err
	}

	osName, err := getOperatingSystemName()
	if err != nil {
		return nil, err
	}

	return &Information{
		Version:       Version,
		ShortName:     ShortName,
		Architecture:  runtime.GOARCH,
		KernelVersion: kernelVersion,
		OS:            osName,
		OSType:        runtime.GOOS,
		Elevated:      IsElevated(),
	}, nil
}
