package process

import "proc_exporter/internal/filetime"

// cpuSample is one reading of the three cumulative counters.
type cpuSample struct {
	total filetime.Ticks // wall clock
	sys   filetime.Ticks // kernel mode
	user  filetime.Ticks // user mode
}

// UpdateCPU reads the process times and the wall clock, sets CPUUsage for the
// interval since the previous call and keeps the new reading as the next
// baseline. A failed query leaves the record untouched.
//
// The first call on a record only establishes the baseline and reports 0.
func (r *Record) UpdateCPU(nbProcessors int) {
	h, err := r.handle.raw()
	if err != nil {
		return
	}

	now := r.sys.Now()
	times, err := h.Times()
	if err != nil {
		plog().Trace().Uint32("pid", uint32(r.Pid)).Err(err).Msg("Process times unavailable")
		return
	}

	cur := cpuSample{total: now, sys: times.Kernel, user: times.User}
	r.CPUUsage = cpuUsage(r.previous(), cur, nbProcessors)
	r.prevTotal, r.prevSys, r.prevUser = cur.total, cur.sys, cur.user
}

func (r *Record) previous() cpuSample {
	return cpuSample{total: r.prevTotal, sys: r.prevSys, user: r.prevUser}
}

// cpuUsage computes ((Δsys + Δuser) / Δwall) / nbProcessors * 100.
// The result lies in [0, 100*nbProcessors]. Counters that went backwards
// contribute nothing, and an empty interval yields 0.
func cpuUsage(prev, cur cpuSample, nbProcessors int) float64 {
	if nbProcessors < 1 {
		nbProcessors = 1
	}
	if prev.total == 0 {
		return 0
	}
	wall := cur.total.Since(prev.total)
	if wall == 0 {
		return 0
	}
	busy := cur.sys.Since(prev.sys) + cur.user.Since(prev.user)

	usage := float64(busy) / float64(wall) / float64(nbProcessors) * 100
	if ceiling := 100 * float64(nbProcessors); usage > ceiling {
		usage = ceiling
	}
	return usage
}
