//go:build linux

package procfsapi

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/process"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

type handle struct {
	proc  procfs.Proc
	pid   int
	pidfd int
	// start is the stat start time (clock ticks since boot) seen at open.
	// A different value later means the pid now names another process.
	start uint64
}

// canSignal checks that the pidfd exists and that the caller may signal it.
func (h *handle) canSignal() error {
	if h.pidfd < 0 {
		return fmt.Errorf("no pidfd: %w", process.ErrAccessDenied)
	}
	if err := unix.PidfdSendSignal(h.pidfd, 0, nil, 0); err != nil {
		if errors.Is(err, unix.EPERM) {
			return errors.Join(process.ErrAccessDenied, err)
		}
		return err
	}
	return nil
}

func (h *handle) BaseName() (string, error) {
	if exe, err := h.proc.Executable(); err == nil && exe != "" {
		return filepath.Base(exe), nil
	}
	comm, err := h.proc.Comm()
	if err != nil {
		return "", fmt.Errorf("failed to read name of pid %d: %w", h.pid, err)
	}
	return comm, nil
}

func (h *handle) Times() (process.Times, error) {
	stat, err := h.proc.Stat()
	if err != nil {
		return process.Times{}, fmt.Errorf("failed to read stat of pid %d: %w", h.pid, err)
	}
	start, err := stat.StartTime()
	if err != nil {
		return process.Times{}, fmt.Errorf("failed to read start time of pid %d: %w", h.pid, err)
	}
	sec, frac := int64(start), start-float64(int64(start))
	return process.Times{
		Creation: filetime.FromTime(time.Unix(sec, int64(frac*1e9))),
		Kernel:   filetime.Ticks(stat.STime) * ticksPerClockTick,
		User:     filetime.Ticks(stat.UTime) * ticksPerClockTick,
	}, nil
}

// PrivateBytes reports resident anonymous memory, the closest Linux
// counterpart of private bytes.
func (h *handle) PrivateBytes() (uint64, error) {
	status, err := h.proc.NewStatus()
	if err != nil {
		return 0, fmt.Errorf("failed to read status of pid %d: %w", h.pid, err)
	}
	return status.RssAnon, nil
}

// Terminate sends SIGKILL through the pidfd. Linux has no caller-chosen exit
// code, so exitCode is ignored.
func (h *handle) Terminate(uint32) error {
	if h.pidfd < 0 {
		return fmt.Errorf("failed to kill pid %d: no pidfd: %w", h.pid, process.ErrAccessDenied)
	}
	if err := unix.PidfdSendSignal(h.pidfd, unix.SIGKILL, nil, 0); err != nil {
		if errors.Is(err, unix.EPERM) {
			err = errors.Join(process.ErrAccessDenied, err)
		}
		return fmt.Errorf("failed to kill pid %d: %w", h.pid, err)
	}
	return nil
}

// Alive reports false once the process exited or became a zombie. Without a
// pidfd it compares the stat start time with the one seen at open.
func (h *handle) Alive() (bool, error) {
	if h.pidfd >= 0 {
		if err := unix.PidfdSendSignal(h.pidfd, 0, nil, 0); errors.Is(err, unix.ESRCH) {
			return false, nil
		}
	}
	stat, err := h.proc.Stat()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ESRCH) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read stat of pid %d: %w", h.pid, err)
	}
	if stat.Starttime != h.start {
		return false, nil
	}
	switch stat.State {
	case "Z", "X", "x":
		return false, nil
	}
	return true, nil
}

func (h *handle) Status() (process.Status, error) {
	stat, err := h.proc.Stat()
	if err != nil {
		return process.StatusUnknown, fmt.Errorf("failed to read stat of pid %d: %w", h.pid, err)
	}
	return statusFromState(stat.State), nil
}

func statusFromState(state string) process.Status {
	switch state {
	case "R":
		return process.StatusRun
	case "S":
		return process.StatusSleep
	case "D":
		return process.StatusDiskSleep
	case "I":
		return process.StatusIdle
	case "T", "t":
		return process.StatusStop
	case "Z":
		return process.StatusZombie
	case "X", "x":
		return process.StatusDead
	default:
		return process.StatusUnknown
	}
}

func (h *handle) CommandLine() ([]string, error) {
	return h.proc.CmdLine()
}

func (h *handle) Executable() (string, error) {
	return h.proc.Executable()
}

func (h *handle) Cwd() (string, error) {
	return h.proc.Cwd()
}

func (h *handle) Root() (string, error) {
	return h.proc.RootDir()
}

func (h *handle) Close() error {
	if h.pidfd < 0 {
		return nil
	}
	fd := h.pidfd
	h.pidfd = -1
	return unix.Close(fd)
}
