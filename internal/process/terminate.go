package process

// Terminate asks the OS to end the process with exitCode and reports whether
// the request was accepted. It neither waits for the exit nor retries.
// Degraded records and handles opened without termination rights return false
// without calling the OS.
func (r *Record) Terminate(exitCode uint32) bool {
	h, err := r.handle.raw()
	if err != nil {
		return false
	}
	if !r.handle.Access().CanTerminate() {
		plog().Debug().Uint32("pid", uint32(r.Pid)).Msg("Handle lacks termination rights")
		return false
	}
	if err := h.Terminate(exitCode); err != nil {
		plog().Debug().
			Uint32("pid", uint32(r.Pid)).
			Uint32("exit_code", exitCode).
			Err(err).
			Msg("Terminate request failed")
		return false
	}
	plog().Debug().Uint32("pid", uint32(r.Pid)).Uint32("exit_code", exitCode).Msg("Terminate request sent")
	return true
}
