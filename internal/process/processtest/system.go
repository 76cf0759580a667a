// Package processtest provides a scripted, in-memory process.System for tests.
package processtest

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/process"
)

// ErrNoSuchProcess is returned when opening a pid the fake does not know.
var ErrNoSuchProcess = errors.New("no such process")

// Proc is the scripted state of one fake process. Tests may change counters
// between calls through System.Update.
type Proc struct {
	Pid    process.Pid
	Parent process.Pid
	Name   string

	// Denied lists the access bits the fake OS refuses for this process.
	Denied process.Access

	Creation     filetime.Ticks
	Kernel       filetime.Ticks
	User         filetime.Ticks
	PrivateBytes uint64
	Status       process.Status
	CommandLine  []string

	NameErr      error
	TimesErr     error
	MemoryErr    error
	TerminateErr error

	Exited     bool
	Terminated bool
	ExitCode   uint32
}

// System is a fake process.System. It is safe for concurrent use.
type System struct {
	mu sync.Mutex

	procs map[process.Pid]*Proc
	clock filetime.Ticks
	self  process.Pid
	env   []string

	// SnapshotErr makes Snapshot fail when set.
	SnapshotErr error

	opens          int
	closes         int
	doubleCloses   int
	terminates     int
	snapshots      int
	snapshotCloses int
	live           map[*handle]struct{}
}

// NewSystem returns an empty fake whose wall clock starts at start.
func NewSystem(start filetime.Ticks) *System {
	return &System{
		procs: make(map[process.Pid]*Proc),
		clock: start,
		self:  1,
		env:   []string{"PATH=/usr/bin", "HOME=/root"},
		live:  make(map[*handle]struct{}),
	}
}

// SetSelf sets the pid and environment reported for the calling process.
func (s *System) SetSelf(pid process.Pid, env []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = pid
	s.env = slices.Clone(env)
}

// Add registers a process, replacing any previous one with the same pid.
func (s *System) Add(p Proc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.procs[p.Pid] = &cp
}

// Remove forgets a process so it disappears from snapshots and Open.
func (s *System) Remove(pid process.Pid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, pid)
}

// Update mutates a registered process under the fake's lock.
func (s *System) Update(pid process.Pid, fn func(p *Proc)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.procs[pid]; ok {
		fn(p)
	}
}

// Get returns a copy of a registered process.
func (s *System) Get(pid process.Pid) (Proc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok {
		return Proc{}, false
	}
	return *p, true
}

// Advance moves the wall clock forward.
func (s *System) Advance(d filetime.Ticks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock += d
}

// Stats are call counters recorded by the fake.
type Stats struct {
	Opens          int
	Closes         int
	DoubleCloses   int
	Terminates     int
	OpenHandles    int
	Snapshots      int
	SnapshotCloses int
}

// Stats returns the call counters.
func (s *System) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Opens:          s.opens,
		Closes:         s.closes,
		DoubleCloses:   s.doubleCloses,
		Terminates:     s.terminates,
		OpenHandles:    len(s.live),
		Snapshots:      s.snapshots,
		SnapshotCloses: s.snapshotCloses,
	}
}

// Open implements process.System.
func (s *System) Open(pid process.Pid, access process.Access) (process.OSHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[pid]
	if !ok || p.Exited {
		return nil, fmt.Errorf("open %d: %w", pid, ErrNoSuchProcess)
	}
	if p.Denied&access != 0 {
		return nil, fmt.Errorf("open %d with %s access: %w", pid, access, process.ErrAccessDenied)
	}
	s.opens++
	h := &handle{sys: s, pid: pid}
	s.live[h] = struct{}{}
	return h, nil
}

// Now implements process.System.
func (s *System) Now() filetime.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Getpid implements process.System.
func (s *System) Getpid() process.Pid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Environ implements process.System.
func (s *System) Environ() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.env)
}

// Snapshot implements process.System. Entries are ordered by pid.
func (s *System) Snapshot() (process.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SnapshotErr != nil {
		return nil, s.SnapshotErr
	}
	entries := make([]process.Entry, 0, len(s.procs))
	for _, p := range s.procs {
		if p.Exited {
			continue
		}
		entries = append(entries, process.Entry{Pid: p.Pid, Parent: p.Parent, ExeFile: p.Name})
	}
	slices.SortFunc(entries, func(a, b process.Entry) int { return int(a.Pid) - int(b.Pid) })
	s.snapshots++
	return &SliceSnapshot{Entries: entries, onClose: s.snapshotClosed}, nil
}

func (s *System) snapshotClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotCloses++
}

// SliceSnapshot is a process.Snapshot over a fixed list of entries.
type SliceSnapshot struct {
	Entries []process.Entry
	// Fail is reported by Err once the entries are exhausted.
	Fail error

	pos     int
	closed  bool
	onClose func()
}

// Next implements process.Snapshot.
func (s *SliceSnapshot) Next() (process.Entry, bool) {
	if s.closed || s.pos >= len(s.Entries) {
		return process.Entry{}, false
	}
	e := s.Entries[s.pos]
	s.pos++
	return e, true
}

// Err implements process.Snapshot.
func (s *SliceSnapshot) Err() error {
	return s.Fail
}

// Close implements process.Snapshot.
func (s *SliceSnapshot) Close() error {
	if s.closed {
		return errors.New("snapshot already closed")
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSnapshot) Closed() bool {
	return s.closed
}

// SnapshotSystem serves a fixed snapshot and nothing else.
type SnapshotSystem struct {
	*System
	Snap *SliceSnapshot
}

// Snapshot implements process.System.
func (s *SnapshotSystem) Snapshot() (process.Snapshot, error) {
	return s.Snap, nil
}

type handle struct {
	sys    *System
	pid    process.Pid
	closed bool
}

func (h *handle) proc() (*Proc, error) {
	if h.closed {
		return nil, process.ErrHandleClosed
	}
	p, ok := h.sys.procs[h.pid]
	if !ok || p.Exited {
		return nil, ErrNoSuchProcess
	}
	return p, nil
}

func (h *handle) BaseName() (string, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	p, err := h.proc()
	if err != nil {
		return "", err
	}
	if p.NameErr != nil {
		return "", p.NameErr
	}
	return p.Name, nil
}

func (h *handle) Times() (process.Times, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	p, err := h.proc()
	if err != nil {
		return process.Times{}, err
	}
	if p.TimesErr != nil {
		return process.Times{}, p.TimesErr
	}
	return process.Times{Creation: p.Creation, Kernel: p.Kernel, User: p.User}, nil
}

func (h *handle) PrivateBytes() (uint64, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	p, err := h.proc()
	if err != nil {
		return 0, err
	}
	if p.MemoryErr != nil {
		return 0, p.MemoryErr
	}
	return p.PrivateBytes, nil
}

func (h *handle) Terminate(exitCode uint32) error {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	h.sys.terminates++
	p, err := h.proc()
	if err != nil {
		return err
	}
	if p.TerminateErr != nil {
		return p.TerminateErr
	}
	p.Terminated, p.ExitCode = true, exitCode
	return nil
}

func (h *handle) Alive() (bool, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	if h.closed {
		return false, process.ErrHandleClosed
	}
	p, ok := h.sys.procs[h.pid]
	return ok && !p.Exited && !p.Terminated, nil
}

func (h *handle) Status() (process.Status, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	p, err := h.proc()
	if err != nil {
		return process.StatusUnknown, err
	}
	return p.Status, nil
}

func (h *handle) CommandLine() ([]string, error) {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	p, err := h.proc()
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.CommandLine), nil
}

func (h *handle) Close() error {
	h.sys.mu.Lock()
	defer h.sys.mu.Unlock()
	if h.closed {
		h.sys.doubleCloses++
		return process.ErrHandleClosed
	}
	h.closed = true
	h.sys.closes++
	delete(h.sys.live, h)
	return nil
}
