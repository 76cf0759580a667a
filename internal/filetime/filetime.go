// Package filetime converts the OS's split 100-nanosecond tick counters into a
// single 64-bit value.
//
// A Ticks value is opaque: it counts 100ns intervals from an OS-defined origin
// (the FILETIME epoch, 1601-01-01 UTC, for wall-clock readings, or zero for
// cumulative CPU time). Only differences between two Ticks taken from the same
// source are meaningful.
package filetime

import "time"

// TicksPerSecond is the number of 100ns intervals in one second.
const TicksPerSecond = 10_000_000

// unixEpochTicks is the number of 100ns intervals between 1601-01-01 and 1970-01-01.
const unixEpochTicks = 116_444_736_000_000_000

// Ticks is a 64-bit count of 100ns intervals.
type Ticks uint64

// FromWords reassembles a tick count from its low and high 32-bit halves.
// The low word supplies the least-significant 32 bits; no sign extension occurs.
func FromWords(low, high uint32) Ticks {
	return Ticks(uint64(high)<<32 | uint64(low))
}

// Words splits t back into its low and high 32-bit halves.
func (t Ticks) Words() (low, high uint32) {
	return uint32(t), uint32(t >> 32)
}

// FromDuration converts a duration into ticks, truncating below 100ns.
func FromDuration(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	return Ticks(d / 100)
}

// FromTime converts a wall-clock instant into ticks on the FILETIME epoch.
// Instants before 1601 clamp to zero.
func FromTime(t time.Time) Ticks {
	ns := t.UnixNano()
	ticks := ns/100 + unixEpochTicks
	if ticks < 0 {
		return 0
	}
	return Ticks(ticks)
}

// Since returns now - t, or zero when the counter regressed.
func (t Ticks) Since(earlier Ticks) Ticks {
	if t < earlier {
		return 0
	}
	return t - earlier
}

// Duration interprets t as a length of time.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * 100
}

// Seconds interprets t as whole seconds from its origin, truncating.
func (t Ticks) Seconds() uint64 {
	return uint64(t) / TicksPerSecond
}

// Time interprets t as an instant on the FILETIME epoch. A zero value maps to
// the zero time.Time.
func (t Ticks) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	unix := int64(t) - unixEpochTicks
	return time.Unix(unix/TicksPerSecond, (unix%TicksPerSecond)*100).UTC()
}
