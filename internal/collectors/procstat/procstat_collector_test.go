package procstat

import (
	"strings"
	"testing"
	"time"

	"proc_exporter/internal/config"
	"proc_exporter/internal/process"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []process.Stats

func (s staticSource) Stats() []process.Stats { return s }

func testStats() staticSource {
	return staticSource{
		{Pid: 4, Name: "System", Status: process.StatusRun, Degraded: true},
		{
			Pid: 200, Parent: 100, HasParent: true, Name: "worker.exe", Service: "Schedule",
			Status: process.StatusSleep, CPUUsage: 12.5, MemoryKiB: 2048,
			StartTime: time.Unix(1700000000, 0).UTC(),
		},
	}
}

func TestCollectPerProcess(t *testing.T) {
	c := NewProcStatCollector(testStats(), &config.ProcessConfig{Enabled: true, EnablePerProcess: true})

	expected := `
# HELP proc_cpu_usage_percent CPU usage over the last refresh interval, normalised by the logical processor count (0-100 per processor).
# TYPE proc_cpu_usage_percent gauge
proc_cpu_usage_percent{name="worker.exe",pid="200"} 12.5
# HELP proc_info Process identity. Always 1.
# TYPE proc_info gauge
proc_info{name="System",pid="4",ppid="",service="",status="Runnable"} 1
proc_info{name="worker.exe",pid="200",ppid="100",service="Schedule",status="Sleeping"} 1
# HELP proc_memory_private_kib Private memory usage in KiB.
# TYPE proc_memory_private_kib gauge
proc_memory_private_kib{name="worker.exe",pid="200"} 2048
# HELP proc_start_time_seconds Process start time in seconds since the Unix epoch.
# TYPE proc_start_time_seconds gauge
proc_start_time_seconds{name="worker.exe",pid="200"} 1.7e+09
# HELP proc_tracked_processes Number of tracked processes by handle state.
# TYPE proc_tracked_processes gauge
proc_tracked_processes{state="degraded"} 1
proc_tracked_processes{state="ok"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestCollectTotalsOnly(t *testing.T) {
	c := NewProcStatCollector(testStats(), &config.ProcessConfig{Enabled: true, EnablePerProcess: false})
	assert.Equal(t, 2, testutil.CollectAndCount(c))
	assert.Equal(t, 0, testutil.CollectAndCount(c, "proc_info"))
}

func TestCollectEmpty(t *testing.T) {
	c := NewProcStatCollector(staticSource{}, &config.ProcessConfig{Enabled: true, EnablePerProcess: true})
	assert.Equal(t, 2, testutil.CollectAndCount(c, "proc_tracked_processes"))
}
