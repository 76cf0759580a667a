package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	refreshDuration prometheus.Histogram
	refreshErrors   prometheus.Counter
	records         *prometheus.GaugeVec
	constructed     prometheus.Counter
	released        prometheus.Counter
	replaced        prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proc_exporter_tracker_refresh_duration_seconds",
			Help:    "Time spent refreshing every tracked process record",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		refreshErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "proc_exporter_tracker_refresh_errors_total",
			Help: "Refresh ticks that failed to take a process snapshot",
		}),
		records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proc_exporter_tracker_records",
			Help: "Tracked process records by handle access",
		}, []string{"access"}),
		constructed: factory.NewCounter(prometheus.CounterOpts{
			Name: "proc_exporter_tracker_records_constructed_total",
			Help: "Process records constructed",
		}),
		released: factory.NewCounter(prometheus.CounterOpts{
			Name: "proc_exporter_tracker_records_released_total",
			Help: "Process records released after their process disappeared",
		}),
		replaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "proc_exporter_tracker_records_replaced_total",
			Help: "Process records rebuilt because their pid was reused",
		}),
	}
}
