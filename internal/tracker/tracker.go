// Package tracker keeps one process.Record per running process and refreshes
// them on a fixed interval.
//
// A refresh takes one snapshot, builds records for new pids, releases the
// records of pids that disappeared and then samples every record. Records are
// partitioned across a bounded set of goroutines so that each record is only
// ever touched by one goroutine at a time. Readers never see records directly:
// after every refresh the tracker publishes an immutable []process.Stats.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"proc_exporter/internal/logger"
	"proc_exporter/internal/maps"
	"proc_exporter/internal/process"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/phuslu/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
)

// ErrNotTracked is returned for pids the tracker holds no record for.
var ErrNotTracked = errors.New("process is not tracked")

// ErrClosed is returned by Refresh once the tracker has been closed.
var ErrClosed = errors.New("tracker closed")

// Tracker owns the process records. All methods are safe for concurrent use.
type Tracker struct {
	sys     process.System
	opts    Options
	nb      int
	log     log.Logger
	metrics *metrics

	// mu serializes everything that touches records: Refresh, Terminate,
	// Alive and Close.
	mu      sync.Mutex
	closed  bool
	records maps.ConcurrentMap[process.Pid, *process.Record]

	parents *expirable.LRU[process.Pid, process.Pid]
	stats   atomic.Pointer[[]process.Stats]
}

// New creates a tracker. It does not take a snapshot; call Refresh or Run.
func New(ctx context.Context, sys process.System, opts Options) *Tracker {
	opts.setDefaults()

	t := &Tracker{
		sys:     sys,
		opts:    opts,
		log:     logger.NewLoggerWithContext("tracker"),
		metrics: newMetrics(opts.Registerer),
		records: maps.NewConcurrentMap[process.Pid, *process.Record](opts.MapImplementation),
		parents: expirable.NewLRU[process.Pid, process.Pid](opts.ParentCacheSize, nil, opts.ParentCacheTTL),
	}
	t.nb = opts.Processors
	if t.nb < 1 {
		t.nb = logicalProcessors(ctx, t.log)
	}
	empty := []process.Stats{}
	t.stats.Store(&empty)

	t.log.Debug().
		Int("processors", t.nb).
		Int("workers", opts.Workers).
		Str("map", opts.MapImplementation).
		Int("filters", len(opts.Include)).
		Msg("Tracker created")
	return t
}

func logicalProcessors(ctx context.Context, l log.Logger) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		l.Debug().Err(err).Msg("Falling back to runtime.NumCPU for the processor count")
		return runtime.NumCPU()
	}
	return n
}

// Processors returns the logical processor count used to normalise CPU usage.
func (t *Tracker) Processors() int {
	return t.nb
}

func (t *Tracker) included(name string) bool {
	if len(t.opts.Include) == 0 {
		return true
	}
	for _, re := range t.opts.Include {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Refresh runs one tick. It only fails when no snapshot could be taken, when
// ctx is cancelled or after Close.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}

	start := time.Now()
	topo, err := process.TakeTopology(t.sys)
	if err != nil {
		t.metrics.refreshErrors.Inc()
		t.log.Warn().Err(err).Msg("Refresh skipped, no process snapshot")
		return err
	}

	t.release(topo)
	t.construct(topo)

	recs := t.sorted()
	exited, err := t.sample(ctx, recs)
	if err != nil {
		return err
	}
	if len(exited) > 0 {
		t.replaceReused(topo, exited)
		recs = t.sorted()
	}

	t.publish(recs)
	t.metrics.refreshDuration.Observe(time.Since(start).Seconds())

	t.log.Trace().
		Int("processes", topo.Len()).
		Int("tracked", len(recs)).
		Dur("took", time.Since(start)).
		Msg("Refresh complete")
	return nil
}

// release drops the records of pids absent from the snapshot.
func (t *Tracker) release(topo *process.Topology) {
	var gone []process.Pid
	t.records.Range(func(pid process.Pid, _ *process.Record) bool {
		if !topo.Contains(pid) {
			gone = append(gone, pid)
		}
		return true
	})
	for _, pid := range gone {
		if r, ok := t.records.LoadAndDelete(pid); ok {
			t.closeRecord(r)
			t.metrics.released.Inc()
		}
	}
}

// construct builds records for new pids, using the snapshot parent as hint.
// A degraded record cannot be asked whether its process exited, so it is
// rebuilt when the snapshot lists its pid under another name or parent.
func (t *Tracker) construct(topo *process.Topology) {
	for _, pid := range topo.Pids() {
		if r, ok := t.records.Load(pid); ok {
			if !r.Degraded() || listedAs(topo, r) {
				continue
			}
			t.records.LoadAndDelete(pid)
			t.log.Debug().
				Uint32("pid", uint32(pid)).
				Str("old_name", r.Name).
				Str("new_name", topo.Name(pid)).
				Msg("Pid of degraded record reused, record rebuilt")
			t.closeRecord(r)
			t.metrics.replaced.Inc()
		}
		if !t.included(topo.Name(pid)) {
			continue
		}
		t.records.Store(pid, t.newRecord(topo, pid))
	}
}

// listedAs reports whether the snapshot still lists r's pid with the name and
// parent the record was built from.
func listedAs(topo *process.Topology, r *process.Record) bool {
	if topo.Name(r.Pid) != r.Name {
		return false
	}
	parent, ok := topo.Parent(r.Pid)
	if r.Parent == nil {
		return !ok
	}
	return ok && parent == *r.Parent
}

func (t *Tracker) newRecord(topo *process.Topology, pid process.Pid) *process.Record {
	var parent *process.Pid
	if ppid, ok := topo.Parent(pid); ok {
		parent = &ppid
	}
	r := process.New(t.sys, pid, parent)
	if r.Name == "" {
		r.Name = topo.Name(pid)
	}
	t.metrics.constructed.Inc()
	return r
}

func (t *Tracker) closeRecord(r *process.Record) {
	if err := r.Close(); err != nil {
		t.log.Debug().Uint32("pid", uint32(r.Pid)).Err(err).Msg("Failed to release process handle")
	}
}

func (t *Tracker) sorted() []*process.Record {
	recs := make([]*process.Record, 0, t.records.Len())
	t.records.Range(func(_ process.Pid, r *process.Record) bool {
		recs = append(recs, r)
		return true
	})
	slices.SortFunc(recs, func(a, b *process.Record) int {
		switch {
		case a.Pid < b.Pid:
			return -1
		case a.Pid > b.Pid:
			return 1
		}
		return 0
	})
	return recs
}

// sample refreshes every record. Each worker owns a contiguous slice of recs.
// It returns the records whose process has exited.
func (t *Tracker) sample(ctx context.Context, recs []*process.Record) ([]*process.Record, error) {
	workers := min(t.opts.Workers, len(recs))
	if workers == 0 {
		return nil, nil
	}
	exited := make([][]*process.Record, workers)
	size := (len(recs) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		lo := w * size
		hi := min(lo+size, len(recs))
		if lo >= hi {
			break
		}
		part := recs[lo:hi]
		g.Go(func() error {
			for _, r := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				r.Refresh(t.nb)
				if r.Degraded() {
					continue
				}
				if alive, err := r.Alive(); err == nil && !alive {
					exited[w] = append(exited[w], r)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refresh interrupted: %w", err)
	}
	return slices.Concat(exited...), nil
}

// replaceReused rebuilds the records of exited processes whose pid is still
// listed with a different start time, which means the pid was reused.
// Exited processes that are still listed as themselves (zombies) are kept
// until they leave the snapshot.
func (t *Tracker) replaceReused(topo *process.Topology, exited []*process.Record) {
	for _, old := range exited {
		if !topo.Contains(old.Pid) {
			continue
		}
		fresh := t.newRecord(topo, old.Pid)
		if fresh.Degraded() || fresh.StartTime == old.StartTime {
			t.closeRecord(fresh)
			continue
		}
		t.log.Debug().
			Uint32("pid", uint32(old.Pid)).
			Str("old_name", old.Name).
			Str("new_name", fresh.Name).
			Msg("Pid reused, record rebuilt")
		t.records.Store(old.Pid, fresh)
		t.closeRecord(old)
		t.metrics.replaced.Inc()
	}
}

func (t *Tracker) publish(recs []*process.Record) {
	var services map[process.Pid]string
	if sl, ok := t.sys.(process.ServiceLister); ok {
		var err error
		if services, err = sl.Services(); err != nil {
			t.log.Debug().Err(err).Msg("Service names unavailable")
		}
	}

	var full, query, degraded int
	stats := make([]process.Stats, 0, len(recs))
	for _, r := range recs {
		s := r.Stats()
		s.Service = services[r.Pid]
		stats = append(stats, s)

		switch r.Access() {
		case process.AccessFull:
			full++
		case process.AccessQuery:
			query++
		default:
			degraded++
		}
	}
	t.stats.Store(&stats)

	t.metrics.records.WithLabelValues("full").Set(float64(full))
	t.metrics.records.WithLabelValues("query").Set(float64(query))
	t.metrics.records.WithLabelValues("degraded").Set(float64(degraded))
}

// Stats returns the view published by the last refresh, ordered by pid.
// The slice is shared and must not be modified.
func (t *Tracker) Stats() []process.Stats {
	return *t.stats.Load()
}

// Len returns the number of tracked records.
func (t *Tracker) Len() int {
	return t.records.Len()
}

// Terminate terminates a tracked process. It reports false when the pid is
// not tracked, the record is degraded, the handle lacks termination rights or
// the OS refuses.
func (t *Tracker) Terminate(pid process.Pid, exitCode uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records.Load(pid)
	if !ok {
		return false
	}
	return r.Terminate(exitCode)
}

// Alive asks the OS whether a tracked process has exited.
func (t *Tracker) Alive(pid process.Pid) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records.Load(pid)
	if !ok {
		return false, fmt.Errorf("pid %d: %w", pid, ErrNotTracked)
	}
	return r.Alive()
}

// Parent returns the parent of pid. Tracked records answer directly; other
// pids cost one snapshot, and the answer is cached for ParentCacheTTL.
func (t *Tracker) Parent(pid process.Pid) (process.Pid, bool) {
	if r, ok := t.records.Load(pid); ok && r.Parent != nil {
		return *r.Parent, true
	}
	if parent, ok := t.parents.Get(pid); ok {
		return parent, true
	}
	parent, ok := process.FindParent(t.sys, pid)
	if ok {
		t.parents.Add(pid, parent)
	}
	return parent, ok
}

// Run refreshes immediately and then every interval until ctx is done.
// Every record is released before Run returns.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	defer t.Close()

	t.log.Info().Dur("interval", interval).Msg("Process tracker started")
	if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
		t.log.Warn().Err(err).Msg("Initial refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("Process tracker stopping")
			return
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
				t.log.Warn().Err(err).Msg("Refresh failed")
			}
		}
	}
}

// Close releases every record. Later refreshes fail with ErrClosed.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	var pids []process.Pid
	t.records.Range(func(pid process.Pid, _ *process.Record) bool {
		pids = append(pids, pid)
		return true
	})
	for _, pid := range pids {
		if r, ok := t.records.LoadAndDelete(pid); ok {
			t.closeRecord(r)
		}
	}
	empty := []process.Stats{}
	t.stats.Store(&empty)
	t.log.Debug().Int("released", len(pids)).Msg("Tracker closed")
}
