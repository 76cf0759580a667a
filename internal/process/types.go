// Package process implements per-process introspection: handle acquisition,
// identity extraction, CPU and memory sampling, termination and parent lookup
// through whole-system snapshots.
//
// The package never talks to the operating system directly. Everything goes
// through a System, implemented per platform by windowsapi and procfsapi and
// by processtest for tests.
package process

import (
	"errors"

	"proc_exporter/internal/filetime"
)

// Pid is an OS process identifier. Pids are reused after a process exits, so a
// Pid alone does not identify a process over long periods.
type Pid uint32

var (
	// ErrProtectedPid is returned when asked to open pid 0.
	ErrProtectedPid = errors.New("pid 0 is reserved")
	// ErrAccessDenied is wrapped by backends when the OS refuses a handle.
	ErrAccessDenied = errors.New("access denied")
	// ErrNoHandle is returned by queries on a degraded record.
	ErrNoHandle = errors.New("process handle not available")
	// ErrHandleClosed is returned when a released handle is used or released again.
	ErrHandleClosed = errors.New("process handle already closed")
)

// Access is the permission set requested for, or granted to, a handle.
type Access uint8

const (
	// AccessQuery allows information queries and reading process memory.
	AccessQuery Access = 1 << iota
	// AccessTerminate allows terminating the process.
	AccessTerminate

	// AccessFull is everything this package needs.
	AccessFull = AccessQuery | AccessTerminate
)

// CanTerminate reports whether a handle with this access may terminate the process.
func (a Access) CanTerminate() bool {
	return a&AccessTerminate != 0
}

func (a Access) String() string {
	switch a {
	case AccessFull:
		return "full"
	case AccessQuery:
		return "query"
	case AccessTerminate:
		return "terminate"
	default:
		return "none"
	}
}

// Status is the scheduling state of a process.
type Status uint8

const (
	StatusRun Status = iota
	StatusSleep
	StatusDiskSleep
	StatusIdle
	StatusStop
	StatusZombie
	StatusDead
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusRun:
		return "Runnable"
	case StatusSleep:
		return "Sleeping"
	case StatusDiskSleep:
		return "DiskSleep"
	case StatusIdle:
		return "Idle"
	case StatusStop:
		return "Stopped"
	case StatusZombie:
		return "Zombie"
	case StatusDead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Times holds the cumulative time counters of a process.
// Creation is an instant on the FILETIME epoch; Kernel and User are durations.
type Times struct {
	Creation filetime.Ticks
	Kernel   filetime.Ticks
	User     filetime.Ticks
}

// OSHandle is an open OS reference to one process. Implementations are not
// safe for concurrent use.
type OSHandle interface {
	// BaseName returns the base name of the primary module.
	BaseName() (string, error)
	// Times returns creation time and cumulative kernel/user CPU time.
	Times() (Times, error)
	// PrivateBytes returns the private (non-shared) memory usage in bytes.
	PrivateBytes() (uint64, error)
	// Terminate asks the OS to end the process. It does not wait.
	Terminate(exitCode uint32) error
	// Alive reports whether the process has not exited yet.
	Alive() (bool, error)
	// Close releases the OS resource.
	Close() error
}

// Optional OSHandle capabilities. A backend that cannot answer simply does
// not implement the interface and callers receive errors.ErrUnsupported.
type (
	StatusReader interface {
		Status() (Status, error)
	}
	CommandLineReader interface {
		CommandLine() ([]string, error)
	}
	ExecutableReader interface {
		Executable() (string, error)
	}
	CwdReader interface {
		Cwd() (string, error)
	}
	RootReader interface {
		Root() (string, error)
	}
)

// ServiceLister is implemented by Systems that can name the services hosted
// by each process.
type ServiceLister interface {
	Services() (map[Pid]string, error)
}

// System is the set of OS primitives used by this package.
type System interface {
	// Open returns a handle to pid with exactly the requested access.
	Open(pid Pid, access Access) (OSHandle, error)
	// Now returns the current wall-clock time on the FILETIME epoch.
	Now() filetime.Ticks
	// Snapshot takes a point-in-time enumeration of all processes.
	Snapshot() (Snapshot, error)
	// Getpid returns the pid of the calling process.
	Getpid() Pid
	// Environ returns the environment of the calling process as KEY=VALUE.
	Environ() []string
}
