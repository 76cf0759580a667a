//go:build linux

package platform

import (
	"proc_exporter/internal/process"
	"proc_exporter/internal/procfsapi"
)

// New returns the procfs backend. Options only apply to Windows.
func New(Options) (process.System, error) {
	sys, err := procfsapi.NewSystem()
	if err != nil {
		return nil, err
	}
	return sys, nil
}
