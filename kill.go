package main

import (
	"fmt"

	"proc_exporter/internal/config"
	"proc_exporter/internal/platform"
	"proc_exporter/internal/process"

	"github.com/phuslu/log"
)

var (
	killCmd      = app.Command("kill", "Terminate a process.")
	killPid      = killCmd.Arg("pid", "Process to terminate.").Required().Uint32()
	killExitCode = killCmd.Flag("exit-code", "Exit code given to the process (Windows only).").Default("1").Uint32()
)

func runKill(cfg *config.AppConfig) error {
	sys, err := platform.New(platform.Options{EnableDebugPrivilege: cfg.Tracker.EnableDebugPrivilege})
	if err != nil {
		return err
	}
	return terminate(sys, process.Pid(*killPid), *killExitCode)
}

func terminate(sys process.System, pid process.Pid, exitCode uint32) error {
	r := process.New(sys, pid, nil)
	defer r.Close()

	if r.Degraded() {
		return fmt.Errorf("cannot open pid %d", pid)
	}
	if !r.Access().CanTerminate() {
		return fmt.Errorf("pid %d (%s): %w", pid, r.Name, process.ErrAccessDenied)
	}
	if !r.Terminate(exitCode) {
		return fmt.Errorf("pid %d (%s) refused termination", pid, r.Name)
	}

	log.Info().Uint32("pid", uint32(pid)).Str("name", r.Name).Uint32("exit_code", exitCode).Msg("Process terminated")
	return nil
}
