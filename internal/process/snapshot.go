package process

import (
	"fmt"
	"slices"
)

// Entry is one process as recorded in a snapshot.
type Entry struct {
	Pid     Pid
	Parent  Pid
	ExeFile string
}

// Snapshot iterates over a point-in-time list of processes. It holds an OS
// resource until closed.
type Snapshot interface {
	// Next returns the next entry, or false when the snapshot is exhausted
	// or failed. Err tells the two apart.
	Next() (Entry, bool)
	Err() error
	Close() error
}

// Walk takes one snapshot and calls fn for every entry until fn returns false.
// The snapshot is closed on every path.
func Walk(sys System, fn func(Entry) bool) (err error) {
	snap, err := sys.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to take process snapshot: %w", err)
	}
	defer func() {
		if cerr := snap.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close process snapshot: %w", cerr)
		}
	}()

	for {
		e, ok := snap.Next()
		if !ok {
			break
		}
		if !fn(e) {
			return nil
		}
	}
	return snap.Err()
}

// FindParent scans a fresh snapshot for pid and returns its recorded parent.
// It costs one full snapshot per call; use TakeTopology when resolving many pids.
func FindParent(sys System, pid Pid) (Pid, bool) {
	var (
		parent Pid
		found  bool
	)
	err := Walk(sys, func(e Entry) bool {
		if e.Pid == pid {
			parent, found = e.Parent, true
			return false
		}
		return true
	})
	if err != nil {
		plog().Debug().Uint32("pid", uint32(pid)).Err(err).Msg("Parent lookup failed")
	}
	return parent, found
}

// Topology is the parent/child relationship of every process in one snapshot.
type Topology struct {
	order    []Pid
	parents  map[Pid]Pid
	names    map[Pid]string
	children map[Pid][]Pid
}

// TakeTopology builds a Topology from a single snapshot pass.
func TakeTopology(sys System) (*Topology, error) {
	t := &Topology{
		parents:  make(map[Pid]Pid),
		names:    make(map[Pid]string),
		children: make(map[Pid][]Pid),
	}
	err := Walk(sys, func(e Entry) bool {
		t.add(e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// NewTopology builds a Topology from already collected entries.
func NewTopology(entries []Entry) *Topology {
	t := &Topology{
		parents:  make(map[Pid]Pid, len(entries)),
		names:    make(map[Pid]string, len(entries)),
		children: make(map[Pid][]Pid),
	}
	for _, e := range entries {
		t.add(e)
	}
	return t
}

func (t *Topology) add(e Entry) {
	if _, dup := t.parents[e.Pid]; dup {
		return
	}
	t.order = append(t.order, e.Pid)
	t.parents[e.Pid] = e.Parent
	t.names[e.Pid] = e.ExeFile
	// The idle process lists itself as its own parent.
	if e.Parent != e.Pid {
		t.children[e.Parent] = append(t.children[e.Parent], e.Pid)
	}
}

// Len returns the number of processes in the snapshot.
func (t *Topology) Len() int {
	return len(t.order)
}

// Contains reports whether pid was present in the snapshot.
func (t *Topology) Contains(pid Pid) bool {
	_, ok := t.parents[pid]
	return ok
}

// Parent returns the recorded parent of pid.
func (t *Topology) Parent(pid Pid) (Pid, bool) {
	p, ok := t.parents[pid]
	return p, ok
}

// Name returns the executable name recorded in the snapshot.
func (t *Topology) Name(pid Pid) string {
	return t.names[pid]
}

// Children returns the pids whose recorded parent is pid, in snapshot order.
func (t *Topology) Children(pid Pid) []Pid {
	return slices.Clone(t.children[pid])
}

// Pids returns every pid in snapshot order.
func (t *Topology) Pids() []Pid {
	return slices.Clone(t.order)
}

// Roots returns the pids whose parent is absent from the snapshot or is the
// process itself.
func (t *Topology) Roots() []Pid {
	var roots []Pid
	for _, pid := range t.order {
		parent := t.parents[pid]
		if parent == pid || !t.Contains(parent) {
			roots = append(roots, pid)
		}
	}
	return roots
}
