package system

import (
	"context"
	"runtime"

	"github.com/acobaugh/osrelease"
	"github.com/apex/log"
	"golang.org/x/sys/unix"

	"github.com/pyrohost/resticapi/src/internal/restic"
)

type Information struct {
	Version string            `json:"version"`
	Restic  ResticInformation `json:"restic"`
	System  System            `json:"system"`
}

type ResticInformation struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
}

type System struct {
	Architecture  string `json:"architecture"`
	CPUThreads    int    `json:"cpu_threads"`
	KernelVersion string `json:"kernel_version"`
	OS            string `json:"os"`
	OSType        string `json:"os_type"`
}

// GetSystemInformation reports the API version, the restic binary in use and
// basic facts about the host. A missing restic binary is reported rather than
// treated as an error.
func GetSystemInformation(ctx context.Context, binary string, binaryPath string) (*Information, error) {
	kernel, err := GetKernelVersion()
	if err != nil {
		return nil, err
	}

	info := &Information{
		Version: Version,
		System: System{
			Architecture:  runtime.GOARCH,
			CPUThreads:    runtime.NumCPU(),
			KernelVersion: kernel,
			OS:            getOperatingSystem(),
			OSType:        runtime.GOOS,
		},
	}

	path, err := restic.GetBinaryPath(binary, binaryPath)
	if err != nil {
		return info, nil
	}
	info.Restic.Path = path
	v, err := restic.Version(ctx, path)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("failed to determine restic version")
		return info, nil
	}
	info.Restic.Available = true
	info.Restic.Version = v
	return info, nil
}

// GetKernelVersion returns the release string of the running kernel.
func GetKernelVersion() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Release[:]), nil
}

func getOperatingSystem() string {
	release, err := osrelease.Read()
	if err != nil {
		return runtime.GOOS
	}
	if release["PRETTY_NAME"] != "" {
		return release["PRETTY_NAME"]
	} else if release["NAME"] != "" {
		return release["NAME"]
	}
	return runtime.GOOS
}
