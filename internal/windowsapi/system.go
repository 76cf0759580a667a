//go:build windows

// Package windowsapi implements process.System with Win32 process handles,
// Toolhelp snapshots and the service control manager.
package windowsapi

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/logger"
	"proc_exporter/internal/process"

	"github.com/phuslu/log"
	"golang.org/x/sys/windows"
)

// STILL_ACTIVE is the exit code reported for a process that has not exited.
const stillActive = 259

// System is the Windows process.System.
type System struct {
	log log.Logger

	scmDenied atomic.Bool
}

// NewSystem returns the Windows backend. With debugPrivilege set it first tries
// to enable SeDebugPrivilege; failing to do so is logged and not fatal.
func NewSystem(debugPrivilege bool) (*System, error) {
	s := &System{log: logger.NewLoggerWithContext("windowsapi")}
	if debugPrivilege {
		if err := EnableDebugPrivilege(); err != nil {
			s.log.Warn().Err(err).Msg("Could not enable SeDebugPrivilege, protected processes will be degraded")
		} else {
			s.log.Debug().Msg("SeDebugPrivilege enabled")
		}
	}
	return s, nil
}

func accessRights(access process.Access) uint32 {
	var rights uint32
	if access&process.AccessQuery != 0 {
		rights |= windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ
	}
	if access.CanTerminate() {
		rights |= windows.PROCESS_TERMINATE
	}
	return rights
}

// Open implements process.System.
func (s *System) Open(pid process.Pid, access process.Access) (process.OSHandle, error) {
	h, err := windows.OpenProcess(accessRights(access), false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			err = errors.Join(process.ErrAccessDenied, err)
		}
		return nil, fmt.Errorf("OpenProcess(%d, %s) failed: %w", pid, access, err)
	}
	return &processHandle{h: h, pid: uint32(pid)}, nil
}

// Now implements process.System.
func (s *System) Now() filetime.Ticks {
	var ft windows.Filetime
	windows.GetSystemTimeAsFileTime(&ft)
	return filetime.FromFiletime(ft)
}

// Getpid implements process.System.
func (s *System) Getpid() process.Pid {
	return process.Pid(windows.GetCurrentProcessId())
}

// Environ implements process.System.
func (s *System) Environ() []string {
	return os.Environ()
}
