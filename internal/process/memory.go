package process

// UpdateMemory stores the private memory usage in KiB. When the OS query
// fails the previous value is kept.
func (r *Record) UpdateMemory() {
	h, err := r.handle.raw()
	if err != nil {
		return
	}
	bytes, err := h.PrivateBytes()
	if err != nil {
		plog().Trace().Uint32("pid", uint32(r.Pid)).Err(err).Msg("Memory counters unavailable")
		return
	}
	r.Memory = bytes >> 10
}
