//go:build linux

// Package procfsapi implements process.System on Linux using /proc and pidfds.
package procfsapi

import (
	"errors"
	"fmt"
	"os"
	"time"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/logger"
	"proc_exporter/internal/process"

	"github.com/phuslu/log"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// clockTicks is USER_HZ, the unit of the utime and stime fields of
// /proc/<pid>/stat. It is 100 on every supported architecture.
const clockTicks = 100

const ticksPerClockTick = filetime.TicksPerSecond / clockTicks

// System is a process.System backed by a procfs mount.
type System struct {
	fs  procfs.FS
	log log.Logger

	pidfdOpen func(pid int, flags int) (int, error)
}

// NewSystem uses the default /proc mount.
func NewSystem() (*System, error) {
	return NewSystemAt(procfs.DefaultMountPoint)
}

// NewSystemAt uses the procfs mounted at mountPoint.
func NewSystemAt(mountPoint string) (*System, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at %s: %w", mountPoint, err)
	}
	return &System{
		fs:        fs,
		log:       logger.NewLoggerWithContext("procfs"),
		pidfdOpen: unix.PidfdOpen,
	}, nil
}

// Open implements process.System. Query access needs a readable stat file.
// Terminate access needs a pidfd the caller may signal: without one a later
// kill could reach an unrelated process that reused the pid.
func (s *System) Open(pid process.Pid, access process.Access) (process.OSHandle, error) {
	p, err := s.fs.Proc(int(pid))
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, err)
	}

	stat, err := p.Stat()
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("stat pid %d: %w", pid, errors.Join(process.ErrAccessDenied, err))
		}
		return nil, fmt.Errorf("stat pid %d: %w", pid, err)
	}

	fd, err := s.pidfdOpen(int(pid), 0)
	if err != nil {
		// Kernels before 5.3 have no pidfd.
		if !errors.Is(err, unix.ENOSYS) {
			s.log.Trace().Uint32("pid", uint32(pid)).Err(err).Msg("pidfd_open failed")
		}
		fd = -1
	}
	h := &handle{proc: p, pid: int(pid), pidfd: fd, start: stat.Starttime}

	if access.CanTerminate() {
		if err := h.canSignal(); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("signal pid %d: %w", pid, err)
		}
	}
	return h, nil
}

// Now implements process.System.
func (s *System) Now() filetime.Ticks {
	return filetime.FromTime(time.Now())
}

// Getpid implements process.System.
func (s *System) Getpid() process.Pid {
	return process.Pid(os.Getpid())
}

// Environ implements process.System.
func (s *System) Environ() []string {
	return os.Environ()
}

// Snapshot implements process.System. Processes that exit while the
// snapshot is iterated are skipped.
func (s *System) Snapshot() (process.Snapshot, error) {
	procs, err := s.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return &snapshot{procs: procs}, nil
}

type snapshot struct {
	procs  procfs.Procs
	pos    int
	closed bool
}

func (s *snapshot) Next() (process.Entry, bool) {
	for !s.closed && s.pos < len(s.procs) {
		p := s.procs[s.pos]
		s.pos++
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		return process.Entry{
			Pid:     process.Pid(stat.PID),
			Parent:  process.Pid(stat.PPID),
			ExeFile: stat.Comm,
		}, true
	}
	return process.Entry{}, false
}

func (s *snapshot) Err() error {
	return nil
}

func (s *snapshot) Close() error {
	s.closed = true
	s.procs = nil
	return nil
}
