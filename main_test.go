package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"proc_exporter/internal/filetime"
	"proc_exporter/internal/process"
	"proc_exporter/internal/process/processtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStats() []process.Stats {
	return []process.Stats{
		{Pid: 8, Parent: 4, HasParent: true, Name: "smss.exe", CPUUsage: 1, MemoryKiB: 512},
		{Pid: 4, Name: "System", Degraded: true},
		{Pid: 12, Parent: 8, HasParent: true, Name: "csrss.exe", CPUUsage: 7.5, MemoryKiB: 4096},
		{Pid: 16, Parent: 8, HasParent: true, Name: "Wininit.exe", CPUUsage: 0.5, MemoryKiB: 1024},
	}
}

func TestSortStats(t *testing.T) {
	tests := []struct {
		by   string
		want []process.Pid
	}{
		{"cpu", []process.Pid{12, 8, 16, 4}},
		{"mem", []process.Pid{12, 16, 8, 4}},
		{"pid", []process.Pid{4, 8, 12, 16}},
		{"name", []process.Pid{12, 8, 4, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.by, func(t *testing.T) {
			stats := sampleStats()
			sortStats(stats, tt.by)
			got := make([]process.Pid, 0, len(stats))
			for _, s := range stats {
				got = append(got, s.Pid)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTreeOrder(t *testing.T) {
	topo := process.NewTopology([]process.Entry{
		{Pid: 4, Parent: 0, ExeFile: "System"},
		{Pid: 8, Parent: 4, ExeFile: "smss.exe"},
		{Pid: 12, Parent: 8, ExeFile: "csrss.exe"},
		{Pid: 16, Parent: 8, ExeFile: "wininit.exe"},
	})
	stats := append(sampleStats(), process.Stats{Pid: 99, Name: "gone.exe"})

	ordered, depth := treeOrder(topo, stats)

	got := make([]process.Pid, 0, len(ordered))
	for _, s := range ordered {
		got = append(got, s.Pid)
	}
	assert.Equal(t, []process.Pid{4, 8, 12, 16, 99}, got)
	assert.Equal(t, 0, depth[4])
	assert.Equal(t, 1, depth[8])
	assert.Equal(t, 2, depth[12])
	assert.Equal(t, 0, depth[99])
}

func TestRenderTable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stats := []process.Stats{
		{Pid: 4, Name: "System", Degraded: true},
		{
			Pid: 12, Parent: 8, HasParent: true, Name: "csrss.exe", Status: process.StatusRun,
			CPUUsage: 7.5, MemoryKiB: 4096, StartTime: now.Add(-2 * time.Hour),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, stats, map[process.Pid]int{12: 1}, now))
	out := buf.String()

	assert.Contains(t, out, "PID")
	assert.Contains(t, out, "csrss.exe")
	assert.Contains(t, out, "7.5")
	assert.Contains(t, out, "4.0 MiB")
	assert.Contains(t, out, "2 hours ago")
	assert.True(t, strings.HasSuffix(out, "2 processes\n"))
}

func TestTerminateCommand(t *testing.T) {
	sys := processtest.NewSystem(filetime.Ticks(1))
	sys.Add(processtest.Proc{Pid: 10, Name: "victim.exe"})
	sys.Add(processtest.Proc{Pid: 20, Name: "guarded.exe", Denied: process.AccessTerminate})
	sys.Add(processtest.Proc{Pid: 30, Name: "stubborn.exe", TerminateErr: process.ErrAccessDenied})

	require.NoError(t, terminate(sys, 10, 3))
	p, _ := sys.Get(10)
	assert.True(t, p.Terminated)
	assert.Equal(t, uint32(3), p.ExitCode)

	assert.ErrorIs(t, terminate(sys, 20, 1), process.ErrAccessDenied)
	assert.Error(t, terminate(sys, 30, 1))
	assert.Error(t, terminate(sys, 404, 1))
	assert.Error(t, terminate(sys, 0, 1))

	assert.Zero(t, sys.Stats().OpenHandles, "every handle is released")
}
