package procstat

import (
	"strconv"

	"proc_exporter/internal/config"
	"proc_exporter/internal/logger"
	"proc_exporter/internal/process"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource publishes the latest per-process view.
type StatsSource interface {
	Stats() []process.Stats
}

// ProcStatCollector exports the per-process CPU, memory and identity data
// published by the tracker.
type ProcStatCollector struct {
	source StatsSource
	config *config.ProcessConfig
	log    log.Logger

	cpuUsageDesc  *prometheus.Desc
	memoryDesc    *prometheus.Desc
	startTimeDesc *prometheus.Desc
	infoDesc      *prometheus.Desc
	trackedDesc   *prometheus.Desc
}

// NewProcStatCollector creates a collector reading from source.
func NewProcStatCollector(source StatsSource, config *config.ProcessConfig) *ProcStatCollector {
	return &ProcStatCollector{
		source: source,
		config: config,
		log:    logger.NewLoggerWithContext("procstat_collector"),

		cpuUsageDesc: prometheus.NewDesc(
			"proc_cpu_usage_percent",
			"CPU usage over the last refresh interval, normalised by the logical processor count (0-100 per processor).",
			[]string{"pid", "name"}, nil,
		),
		memoryDesc: prometheus.NewDesc(
			"proc_memory_private_kib",
			"Private memory usage in KiB.",
			[]string{"pid", "name"}, nil,
		),
		startTimeDesc: prometheus.NewDesc(
			"proc_start_time_seconds",
			"Process start time in seconds since the Unix epoch.",
			[]string{"pid", "name"}, nil,
		),
		infoDesc: prometheus.NewDesc(
			"proc_info",
			"Process identity. Always 1.",
			[]string{"pid", "ppid", "name", "status", "service"}, nil,
		),
		trackedDesc: prometheus.NewDesc(
			"proc_tracked_processes",
			"Number of tracked processes by handle state.",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *ProcStatCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsageDesc
	ch <- c.memoryDesc
	ch <- c.startTimeDesc
	ch <- c.infoDesc
	ch <- c.trackedDesc
}

// Collect implements prometheus.Collector.
// Degraded processes only get proc_info since their counters are unknown.
func (c *ProcStatCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()

	var degraded int
	for i := range stats {
		s := &stats[i]
		if s.Degraded {
			degraded++
		}
		if !c.config.EnablePerProcess {
			continue
		}

		pid := strconv.FormatUint(uint64(s.Pid), 10)
		ppid := ""
		if s.HasParent {
			ppid = strconv.FormatUint(uint64(s.Parent), 10)
		}
		ch <- prometheus.MustNewConstMetric(c.infoDesc, prometheus.GaugeValue, 1,
			pid, ppid, s.Name, s.Status.String(), s.Service)

		if s.Degraded {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.cpuUsageDesc, prometheus.GaugeValue, s.CPUUsage, pid, s.Name)
		ch <- prometheus.MustNewConstMetric(c.memoryDesc, prometheus.GaugeValue, float64(s.MemoryKiB), pid, s.Name)
		if !s.StartTime.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.startTimeDesc, prometheus.GaugeValue,
				float64(s.StartTime.UnixNano())/1e9, pid, s.Name)
		}
	}

	ch <- prometheus.MustNewConstMetric(c.trackedDesc, prometheus.GaugeValue, float64(len(stats)-degraded), "ok")
	ch <- prometheus.MustNewConstMetric(c.trackedDesc, prometheus.GaugeValue, float64(degraded), "degraded")

	c.log.Trace().Int("processes", len(stats)).Msg("Collected process metrics")
}
