//go:build !windows && !linux

package platform

import (
	"errors"
	"fmt"
	"runtime"

	"proc_exporter/internal/process"
)

// New reports that the running OS has no backend.
func New(Options) (process.System, error) {
	return nil, fmt.Errorf("process tracking on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}
