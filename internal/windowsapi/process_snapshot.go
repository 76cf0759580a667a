//go:build windows

package windowsapi

import (
	"errors"
	"fmt"
	"unsafe"

	"proc_exporter/internal/process"

	"golang.org/x/sys/windows"
)

// Snapshot takes a Toolhelp snapshot of every running process. This provides
// a "synthetic rundown" of active processes with their recorded parents.
func (s *System) Snapshot() (process.Snapshot, error) {
	h, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	snap := &toolhelpSnapshot{h: h}
	snap.pe32.Size = uint32(unsafe.Sizeof(snap.pe32))
	return snap, nil
}

type toolhelpSnapshot struct {
	h       windows.Handle
	pe32    windows.ProcessEntry32
	started bool
	done    bool
	err     error
}

func (s *toolhelpSnapshot) Next() (process.Entry, bool) {
	if s.done {
		return process.Entry{}, false
	}

	var err error
	if !s.started {
		s.started = true
		err = windows.Process32First(s.h, &s.pe32)
	} else {
		err = windows.Process32Next(s.h, &s.pe32)
	}
	if err != nil {
		s.done = true
		if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
			s.err = err
		}
		return process.Entry{}, false
	}

	return process.Entry{
		Pid:     process.Pid(s.pe32.ProcessID),
		Parent:  process.Pid(s.pe32.ParentProcessID),
		ExeFile: windows.UTF16ToString(s.pe32.ExeFile[:]),
	}, true
}

func (s *toolhelpSnapshot) Err() error {
	return s.err
}

func (s *toolhelpSnapshot) Close() error {
	if s.h == windows.InvalidHandle {
		return process.ErrHandleClosed
	}
	h := s.h
	s.h = windows.InvalidHandle
	s.done = true
	return windows.CloseHandle(h)
}
