//go:build windows

package platform

import (
	"proc_exporter/internal/process"
	"proc_exporter/internal/windowsapi"
)

// New returns the Win32 backend.
func New(opts Options) (process.System, error) {
	return windowsapi.NewSystem(opts.EnableDebugPrivilege)
}
