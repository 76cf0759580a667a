package tracker

import (
	"regexp"
	"time"

	"proc_exporter/internal/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Options configure a Tracker.
type Options struct {
	// Workers bounds the goroutines refreshing records in parallel.
	Workers int
	// ParentCacheTTL and ParentCacheSize bound the cache behind Parent.
	ParentCacheTTL  time.Duration
	ParentCacheSize int
	// MapImplementation names the maps.ConcurrentMap holding the records.
	MapImplementation string
	// Include restricts tracking to processes whose snapshot name matches
	// one of the expressions. Empty means every process.
	Include []*regexp.Regexp
	// Processors overrides the logical processor count. Zero detects it.
	Processors int
	// Registerer receives the tracker self-metrics. Nil skips registration.
	Registerer prometheus.Registerer
}

// OptionsFromConfig translates the [tracker] section of the configuration.
func OptionsFromConfig(cfg config.TrackerConfig) (Options, error) {
	opts := Options{
		Workers:           cfg.Workers,
		ParentCacheTTL:    cfg.ParentCacheTTL,
		ParentCacheSize:   cfg.ParentCacheSize,
		MapImplementation: cfg.MapImplementation,
	}
	if cfg.ProcessFilter.Enabled {
		include, err := cfg.ProcessFilter.Compile()
		if err != nil {
			return Options{}, err
		}
		opts.Include = include
	}
	return opts, nil
}

func (o *Options) setDefaults() {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.ParentCacheTTL <= 0 {
		o.ParentCacheTTL = 10 * time.Second
	}
	if o.ParentCacheSize < 1 {
		o.ParentCacheSize = 4096
	}
}
