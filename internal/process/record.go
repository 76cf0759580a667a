package process

import (
	"errors"
	"time"

	"proc_exporter/internal/filetime"
)

// Record is one tracked OS process: its identity, the handle it owns and the
// trailing CPU sample used to compute usage as a rate.
//
// A Record is not safe for concurrent use. Callers refreshing many records in
// parallel must give each record to a single goroutine at a time.
type Record struct {
	Pid    Pid
	Parent *Pid

	Name string
	Cmd  string
	Exe  string
	Cwd  string
	Root string

	// Environ is only populated for the calling process itself.
	Environ []string

	// Memory is the private memory usage in KiB.
	Memory uint64
	// CPUUsage is a percentage normalised by the logical processor count.
	CPUUsage float64
	// StartTime is the creation instant on the FILETIME epoch.
	StartTime filetime.Ticks
	Status    Status

	sys    System
	handle *Handle

	prevTotal filetime.Ticks
	prevSys   filetime.Ticks
	prevUser  filetime.Ticks
}

// New builds a Record for pid. When no handle can be acquired the record is
// degraded: it carries only pid and parent, and every query is a no-op.
// New never fails; call Close when the record is no longer tracked.
func New(sys System, pid Pid, parent *Pid) *Record {
	r := &Record{
		Pid:    pid,
		Parent: parent,
		Status: StatusRun,
		sys:    sys,
	}

	h, err := Acquire(sys, pid)
	if err != nil {
		plog().Debug().
			Uint32("pid", uint32(pid)).
			Err(err).
			Msg("Process record is degraded")
		return r
	}
	r.handle = h

	if name, err := h.os.BaseName(); err == nil {
		r.Name = name
	} else {
		plog().Trace().Uint32("pid", uint32(pid)).Err(err).Msg("Module base name unavailable")
	}

	if times, err := h.os.Times(); err == nil {
		r.StartTime = times.Creation
	}

	if pid == sys.Getpid() {
		r.Environ = sys.Environ()
	}

	plog().Debug().
		Uint32("pid", uint32(pid)).
		Str("name", r.Name).
		Str("access", h.Access().String()).
		Msg("Process record constructed")

	return r
}

// Degraded reports whether the record holds no usable handle.
func (r *Record) Degraded() bool {
	return !r.handle.Valid()
}

// Access returns the permission tier of the held handle.
func (r *Record) Access() Access {
	return r.handle.Access()
}

// Close releases the handle. Closing a degraded or already closed record is a no-op.
func (r *Record) Close() error {
	if !r.handle.Valid() {
		return nil
	}
	err := r.handle.Close()
	plog().Trace().Uint32("pid", uint32(r.Pid)).Msg("Process handle released")
	return err
}

// Refresh recomputes CPU usage, memory and status for one tick.
func (r *Record) Refresh(nbProcessors int) {
	r.UpdateCPU(nbProcessors)
	r.UpdateMemory()
	r.updateStatus()
}

func (r *Record) updateStatus() {
	h, err := r.handle.raw()
	if err != nil {
		return
	}
	if sr, ok := h.(StatusReader); ok {
		if st, err := sr.Status(); err == nil {
			r.Status = st
		}
	}
}

// Alive asks the OS whether the process has exited.
func (r *Record) Alive() (bool, error) {
	h, err := r.handle.raw()
	if err != nil {
		return false, err
	}
	return h.Alive()
}

// CommandLine returns the process arguments when the platform can read them.
// errors.ErrUnsupported distinguishes "cannot tell" from an empty command line.
func (r *Record) CommandLine() ([]string, error) {
	h, err := r.handle.raw()
	if err != nil {
		return nil, err
	}
	if cr, ok := h.(CommandLineReader); ok {
		return cr.CommandLine()
	}
	return nil, errors.ErrUnsupported
}

// Executable returns the full path of the process image.
func (r *Record) Executable() (string, error) {
	h, err := r.handle.raw()
	if err != nil {
		return "", err
	}
	if er, ok := h.(ExecutableReader); ok {
		return er.Executable()
	}
	return "", errors.ErrUnsupported
}

// WorkingDir returns the current working directory of the process.
func (r *Record) WorkingDir() (string, error) {
	h, err := r.handle.raw()
	if err != nil {
		return "", err
	}
	if cr, ok := h.(CwdReader); ok {
		return cr.Cwd()
	}
	return "", errors.ErrUnsupported
}

// RootDir returns the root directory of the process.
func (r *Record) RootDir() (string, error) {
	h, err := r.handle.raw()
	if err != nil {
		return "", err
	}
	if rr, ok := h.(RootReader); ok {
		return rr.Root()
	}
	return "", errors.ErrUnsupported
}

// StartSeconds returns the start time in whole seconds since the FILETIME epoch.
func (r *Record) StartSeconds() uint64 {
	return r.StartTime.Seconds()
}

// StartedAt returns the start time as a wall-clock instant, or the zero time
// when unknown.
func (r *Record) StartedAt() time.Time {
	return r.StartTime.Time()
}

// Stats is a read-only copy of the public fields of a Record, safe to hand to
// presentation code while the record keeps being refreshed.
type Stats struct {
	Pid       Pid
	Parent    Pid
	HasParent bool
	Name      string
	Service   string
	Status    Status
	CPUUsage  float64
	MemoryKiB uint64
	StartTime time.Time
	Degraded  bool
}

// Stats copies the current public state of the record.
func (r *Record) Stats() Stats {
	s := Stats{
		Pid:       r.Pid,
		Name:      r.Name,
		Status:    r.Status,
		CPUUsage:  r.CPUUsage,
		MemoryKiB: r.Memory,
		StartTime: r.StartedAt(),
		Degraded:  r.Degraded(),
	}
	if r.Parent != nil {
		s.Parent, s.HasParent = *r.Parent, true
	}
	return s
}
