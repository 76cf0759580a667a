package process_test

import (
	"errors"
	"testing"

	"proc_exporter/internal/process"
	"proc_exporter/internal/process/processtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotSystem(entries ...process.Entry) *processtest.SnapshotSystem {
	return &processtest.SnapshotSystem{
		System: newSystem(),
		Snap:   &processtest.SliceSnapshot{Entries: entries},
	}
}

func TestFindParent(t *testing.T) {
	entries := []process.Entry{{Pid: 4, Parent: 1}, {Pid: 8, Parent: 4}}

	t.Run("match", func(t *testing.T) {
		sys := snapshotSystem(entries...)
		parent, ok := process.FindParent(sys, 8)
		assert.True(t, ok)
		assert.Equal(t, process.Pid(4), parent)
		assert.True(t, sys.Snap.Closed(), "snapshot must be closed on early return")
	})

	t.Run("no match", func(t *testing.T) {
		sys := snapshotSystem(entries...)
		_, ok := process.FindParent(sys, 99)
		assert.False(t, ok)
		assert.True(t, sys.Snap.Closed())
	})

	t.Run("first match wins", func(t *testing.T) {
		sys := snapshotSystem(process.Entry{Pid: 8, Parent: 4}, process.Entry{Pid: 8, Parent: 5})
		parent, ok := process.FindParent(sys, 8)
		assert.True(t, ok)
		assert.Equal(t, process.Pid(4), parent)
	})

	t.Run("snapshot failure", func(t *testing.T) {
		sys := newSystem()
		sys.Add(processtest.Proc{Pid: 8, Parent: 4})
		sys.SnapshotErr = errors.New("out of resources")
		_, ok := process.FindParent(sys, 8)
		assert.False(t, ok)
	})
}

func TestWalkReportsIterationError(t *testing.T) {
	sys := snapshotSystem(process.Entry{Pid: 4, Parent: 1})
	sys.Snap.Fail = errors.New("truncated")

	var seen []process.Pid
	err := process.Walk(sys, func(e process.Entry) bool {
		seen = append(seen, e.Pid)
		return true
	})
	require.Error(t, err)
	assert.Equal(t, []process.Pid{4}, seen)
	assert.True(t, sys.Snap.Closed())
}

func TestTakeTopology(t *testing.T) {
	sys := newSystem()
	for _, p := range []processtest.Proc{
		{Pid: 0, Parent: 0, Name: "Idle"},
		{Pid: 4, Parent: 0, Name: "System"},
		{Pid: 8, Parent: 4, Name: "smss.exe"},
		{Pid: 12, Parent: 8, Name: "csrss.exe"},
		{Pid: 16, Parent: 8, Name: "wininit.exe"},
		{Pid: 20, Parent: 300, Name: "orphan.exe"},
	} {
		sys.Add(p)
	}

	topo, err := process.TakeTopology(sys)
	require.NoError(t, err)

	st := sys.Stats()
	assert.Equal(t, 1, st.Snapshots, "one snapshot for the whole topology")
	assert.Equal(t, 1, st.SnapshotCloses)

	assert.Equal(t, 6, topo.Len())
	assert.Equal(t, []process.Pid{0, 4, 8, 12, 16, 20}, topo.Pids())

	parent, ok := topo.Parent(12)
	assert.True(t, ok)
	assert.Equal(t, process.Pid(8), parent)
	_, ok = topo.Parent(99)
	assert.False(t, ok)

	assert.Equal(t, []process.Pid{12, 16}, topo.Children(8))
	assert.Equal(t, []process.Pid{4}, topo.Children(0), "idle process is not its own child")
	assert.Empty(t, topo.Children(12))
	assert.Equal(t, []process.Pid{0, 20}, topo.Roots())
	assert.Equal(t, "csrss.exe", topo.Name(12))
	assert.True(t, topo.Contains(20))
	assert.False(t, topo.Contains(300))
}

func TestTakeTopologyFailure(t *testing.T) {
	sys := newSystem()
	sys.SnapshotErr = errors.New("out of resources")
	topo, err := process.TakeTopology(sys)
	assert.Error(t, err)
	assert.Nil(t, topo)
}

func TestNewTopologyIgnoresDuplicates(t *testing.T) {
	topo := process.NewTopology([]process.Entry{
		{Pid: 4, Parent: 1},
		{Pid: 4, Parent: 2},
		{Pid: 1, Parent: 1},
	})
	parent, _ := topo.Parent(4)
	assert.Equal(t, process.Pid(1), parent)
	assert.Equal(t, []process.Pid{4}, topo.Children(1))
	assert.Equal(t, []process.Pid{1}, topo.Roots())
}
