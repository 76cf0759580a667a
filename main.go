package main

import (
	"fmt"
	"os"

	"proc_exporter/internal/config"
	"proc_exporter/internal/logger"

	"github.com/alecthomas/kingpin/v2"
	"github.com/phuslu/log"
)

var (
	version = "0.1.0"

	app        = kingpin.New("proc_exporter", "Per-process CPU, memory and identity exporter for Prometheus.")
	configPath = app.Flag("config", "Path to configuration file (optional).").Short('c').String()
	logLevel   = app.Flag("log.level", "Override the configured log level.").
			Enum("trace", "debug", "info", "warn", "error")

	serveCmd      = app.Command("serve", "Run the exporter.").Default()
	listenAddress = serveCmd.Flag("web.listen-address", "Address to listen on for web interface and telemetry.").String()
	metricsPath   = serveCmd.Flag("web.telemetry-path", "Path under which to expose metrics.").String()

	genCmd  = app.Command("generate-config", "Write an example configuration file.")
	genPath = genCmd.Arg("path", "Output file.").Default("config.example.toml").String()
)

func main() {
	app.Version(version)
	app.HelpFlag.Short('h')
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == genCmd.FullCommand() {
		err := config.GenerateExampleConfig(*genPath)
		kingpin.FatalIfError(err, "Unable to generate config")
		fmt.Printf("Example configuration written to %s\n", *genPath)
		return
	}

	cfg, err := loadConfig()
	kingpin.FatalIfError(err, "Unable to load configuration")

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case serveCmd.FullCommand():
		err = runServe(cfg)
	case psCmd.FullCommand():
		err = runPs(cfg)
	case killCmd.FullCommand():
		err = runKill(cfg)
	}
	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig applies, in order: defaults, the config file, PROC_EXPORTER_*
// environment variables and command-line flags.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if *listenAddress != "" {
		cfg.Server.ListenAddress = *listenAddress
	}
	if *metricsPath != "" {
		cfg.Server.MetricsPath = *metricsPath
	}
	if *logLevel != "" {
		cfg.Logging.Defaults.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
