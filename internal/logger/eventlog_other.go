//go:build !windows

package logger

import (
	"errors"
	"fmt"

	"proc_exporter/internal/config"

	"github.com/phuslu/log"
)

// createEventlogWriter fails: the Windows Event Log only exists on Windows.
func createEventlogWriter(*config.EventlogConfig) (log.Writer, error) {
	return nil, fmt.Errorf("eventlog output: %w", errors.ErrUnsupported)
}
