package process

import (
	"errors"
	"fmt"
)

// noCopy lets `go vet` flag accidental copies of a Handle.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns one OS process handle and releases it exactly once.
// A Handle must only be passed around by pointer.
type Handle struct {
	noCopy noCopy

	pid    Pid
	access Access
	os     OSHandle
}

// Acquire opens pid with full access, falling back to query-only access when
// the OS refuses termination rights. The returned handle must be closed.
func Acquire(sys System, pid Pid) (*Handle, error) {
	if pid == 0 {
		return nil, ErrProtectedPid
	}

	h, fullErr := sys.Open(pid, AccessFull)
	if fullErr == nil {
		return &Handle{pid: pid, access: AccessFull, os: h}, nil
	}

	h, queryErr := sys.Open(pid, AccessQuery)
	if queryErr != nil {
		return nil, fmt.Errorf("failed to open pid %d: %w", pid, errors.Join(fullErr, queryErr))
	}

	plog().Trace().
		Uint32("pid", uint32(pid)).
		Err(fullErr).
		Msg("Opened process with reduced access")

	return &Handle{pid: pid, access: AccessQuery, os: h}, nil
}

// Pid returns the process the handle refers to.
func (h *Handle) Pid() Pid {
	if h == nil {
		return 0
	}
	return h.pid
}

// Access returns the permission tier the handle was opened with.
func (h *Handle) Access() Access {
	if h == nil || h.os == nil {
		return 0
	}
	return h.access
}

// Valid reports whether the handle is open.
func (h *Handle) Valid() bool {
	return h != nil && h.os != nil
}

// Close releases the OS handle. Only the first call reaches the OS; later
// calls return ErrHandleClosed.
func (h *Handle) Close() error {
	if !h.Valid() {
		return ErrHandleClosed
	}
	oh := h.os
	h.os = nil
	if err := oh.Close(); err != nil {
		return fmt.Errorf("failed to close handle for pid %d: %w", h.pid, err)
	}
	return nil
}

func (h *Handle) raw() (OSHandle, error) {
	if !h.Valid() {
		return nil, ErrNoHandle
	}
	return h.os, nil
}
