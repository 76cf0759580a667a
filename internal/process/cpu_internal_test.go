package process

import (
	"math"
	"testing"

	"proc_exporter/internal/filetime"

	"github.com/stretchr/testify/assert"
)

func TestCPUUsage(t *testing.T) {
	tests := []struct {
		name string
		prev cpuSample
		cur  cpuSample
		nb   int
		want float64
	}{
		{
			name: "first sample primes the window",
			prev: cpuSample{},
			cur:  cpuSample{total: 1_000, sys: 500, user: 500},
			nb:   1,
			want: 0,
		},
		{
			name: "no cpu consumed",
			prev: cpuSample{total: 1_000, sys: 10, user: 20},
			cur:  cpuSample{total: 2_000, sys: 10, user: 20},
			nb:   4,
			want: 0,
		},
		{
			name: "zero wall delta",
			prev: cpuSample{total: 1_000, sys: 10, user: 20},
			cur:  cpuSample{total: 1_000, sys: 50, user: 90},
			nb:   2,
			want: 0,
		},
		{
			name: "one core fully busy",
			prev: cpuSample{total: 1_000, sys: 0, user: 0},
			cur:  cpuSample{total: 2_000, sys: 250, user: 750},
			nb:   1,
			want: 100,
		},
		{
			name: "half a core on a four core machine",
			prev: cpuSample{total: 10_000, sys: 100, user: 100},
			cur:  cpuSample{total: 20_000, sys: 2_600, user: 2_600},
			nb:   4,
			want: 12.5,
		},
		{
			name: "regressed counters contribute nothing",
			prev: cpuSample{total: 1_000, sys: 500, user: 500},
			cur:  cpuSample{total: 2_000, sys: 100, user: 600},
			nb:   1,
			want: 10,
		},
		{
			name: "wall clock moved backwards",
			prev: cpuSample{total: 2_000, sys: 0, user: 0},
			cur:  cpuSample{total: 1_000, sys: 10, user: 10},
			nb:   1,
			want: 0,
		},
		{
			name: "invalid processor count treated as one",
			prev: cpuSample{total: 1_000},
			cur:  cpuSample{total: 2_000, user: 500},
			nb:   0,
			want: 50,
		},
		{
			name: "clamped to the processor ceiling",
			prev: cpuSample{total: 1_000},
			cur:  cpuSample{total: 1_100, sys: 1_000, user: 1_000},
			nb:   2,
			want: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cpuUsage(tt.prev, tt.cur, tt.nb)
			assert.False(t, math.IsNaN(got) || math.IsInf(got, 0), "got %v", got)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCPUUsageMonotonicCountersNeverNegative(t *testing.T) {
	const nb = 8
	prev := cpuSample{}
	cur := cpuSample{total: filetime.Ticks(1_000_000)}
	for tick := 0; tick < 5; tick++ {
		cur.total += filetime.Ticks(10_000_000)
		cur.sys += filetime.Ticks(tick * 123_456)
		cur.user += filetime.Ticks(tick * 654_321)

		got := cpuUsage(prev, cur, nb)
		assert.GreaterOrEqual(t, got, 0.0, "tick %d", tick)
		assert.LessOrEqual(t, got, 100.0*nb, "tick %d", tick)
		prev = cur
	}
}
