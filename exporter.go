package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // For pprof server
	"os"
	"os/signal"
	"syscall"
	"time"

	"proc_exporter/internal/collectors/procstat"
	"proc_exporter/internal/config"
	"proc_exporter/internal/platform"
	"proc_exporter/internal/tracker"

	plog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter encapsulates the core components of the application.
type Exporter struct {
	config     *config.AppConfig
	tracker    *tracker.Tracker
	registry   *prometheus.Registry
	httpServer *http.Server
	log        plog.Logger
}

func runServe(cfg *config.AppConfig) error {
	e, err := NewExporter(cfg)
	if err != nil {
		return err
	}
	return e.Run()
}

// NewExporter creates the OS backend, the tracker and the HTTP server.
func NewExporter(cfg *config.AppConfig) (*Exporter, error) {
	e := &Exporter{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		log:      plog.DefaultLogger, // main app uses default logger
	}
	e.log.Info().
		Str("version", version).
		Str("listen_address", cfg.Server.ListenAddress).
		Str("metrics_path", cfg.Server.MetricsPath).
		Dur("refresh_interval", cfg.Tracker.RefreshInterval).
		Msg("Starting proc_exporter")

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := e.setupTracker(); err != nil {
		return nil, err
	}
	e.setupHTTPServer()
	return e, nil
}

// setupTracker opens the OS backend and registers the process collector.
func (e *Exporter) setupTracker() error {
	sys, err := platform.New(platform.Options{
		EnableDebugPrivilege: e.config.Tracker.EnableDebugPrivilege,
	})
	if err != nil {
		return fmt.Errorf("failed to open process backend: %w", err)
	}

	opts, err := tracker.OptionsFromConfig(e.config.Tracker)
	if err != nil {
		return err
	}
	opts.Registerer = e.registry
	e.tracker = tracker.New(context.Background(), sys, opts)
	e.log.Debug().Int("processors", e.tracker.Processors()).Msg("- Tracker created")

	if e.config.Collectors.Process.Enabled {
		e.registry.MustRegister(procstat.NewProcStatCollector(e.tracker, &e.config.Collectors.Process))
		e.log.Info().
			Bool("per_process", e.config.Collectors.Process.EnablePerProcess).
			Msg("Process collector enabled and registered with Prometheus")
	}
	return nil
}

// setupHTTPServer configures the HTTP server for metrics.
func (e *Exporter) setupHTTPServer() {
	e.log.Debug().Str("metrics_path", e.config.Server.MetricsPath).Msg("Setting up HTTP handlers")
	mux := http.NewServeMux()
	mux.Handle(e.config.Server.MetricsPath, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		ErrorLog: stdLogger{e.log},
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>
            <head><title>proc_exporter</title></head>
            <body>
            <h1>proc_exporter v` + version + ` </h1>
            <p><a href="` + e.config.Server.MetricsPath + `">Metrics</a></p>
            </body>
            </html>`))
	})

	e.httpServer = &http.Server{
		Addr:              e.config.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts all services and waits for a shutdown signal.
func (e *Exporter) Run() error {
	// Create a context that we can stop to trigger a graceful shutdown.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Listen for OS signals in a separate goroutine.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		e.log.Info().Msg("! Received OS shutdown signal, shutting down gracefully...")
		stop()
	}()

	if e.config.Server.PprofEnabled {
		go func() {
			// Recover from panics in this goroutine to trigger a graceful shutdown.
			defer func() {
				if r := recover(); r != nil {
					e.log.Error().Interface("panic", r).Msg("Panic recovered in pprof server, initiating shutdown")
					stop()
				}
			}()
			e.log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			// pprof registers its handlers on http.DefaultServeMux
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				e.log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		e.tracker.Run(ctx, e.config.Tracker.RefreshInterval)
	}()

	go func() {
		// Recover from panics in this goroutine to trigger a graceful shutdown.
		defer func() {
			if r := recover(); r != nil {
				e.log.Error().Interface("panic", r).Msg("Panic recovered in HTTP server, initiating shutdown")
				stop()
			}
		}()
		e.log.Info().Str("address", e.config.Server.ListenAddress).Msg("Starting HTTP server")
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error().Err(err).Msg("❌ Failed to start HTTP server")
			stop() // Trigger shutdown on server error
		}
	}()

	e.log.Info().Msg("proc_exporter is ready and tracking processes...")

	// Block until a shutdown is triggered (from OS signal, panic, or other error).
	<-ctx.Done()
	e.log.Info().Msg("! Shutdown initiated...")

	// --- Graceful shutdown sequence ---

	httpCtx, cancelhttp := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelhttp()

	if err := e.httpServer.Shutdown(httpCtx); err != nil {
		e.log.Error().Err(err).Msg("❌ Error shutting down HTTP server")
	} else {
		e.log.Debug().Msg("HTTP server shut down cleanly")
	}

	// Release every process handle as the final step.
	<-trackerDone
	e.log.Info().Msg("proc_exporter stopped gracefully")
	return nil
}

// stdLogger adapts phuslu/log to promhttp's error logger.
type stdLogger struct {
	log plog.Logger
}

func (l stdLogger) Println(v ...any) {
	l.log.Error().Msg(fmt.Sprint(v...))
}
