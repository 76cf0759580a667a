package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"proc_exporter/internal/config"
	"proc_exporter/internal/platform"
	"proc_exporter/internal/process"
	"proc_exporter/internal/tracker"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

var (
	psCmd      = app.Command("ps", "Sample every process twice and print a table.")
	psInterval = psCmd.Flag("interval", "Time between the two samples.").Default("1s").Duration()
	psSort     = psCmd.Flag("sort", "Sort column.").Default("cpu").Enum("cpu", "mem", "pid", "name")
	psTop      = psCmd.Flag("top", "Only print the first N rows (0 for all).").Default("0").Int()
	psTree     = psCmd.Flag("tree", "Print processes as a parent/child tree.").Bool()
)

func runPs(cfg *config.AppConfig) error {
	sys, err := platform.New(platform.Options{EnableDebugPrivilege: cfg.Tracker.EnableDebugPrivilege})
	if err != nil {
		return err
	}
	opts, err := tracker.OptionsFromConfig(cfg.Tracker)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tr := tracker.New(ctx, sys, opts)
	defer tr.Close()

	if err := tr.Refresh(ctx); err != nil {
		return err
	}
	time.Sleep(*psInterval)
	if err := tr.Refresh(ctx); err != nil {
		return err
	}
	stats := slices.Clone(tr.Stats())

	if *psTree {
		topo, err := process.TakeTopology(sys)
		if err != nil {
			return err
		}
		stats, depth := treeOrder(topo, stats)
		return renderTable(os.Stdout, stats, depth, time.Now())
	}

	sortStats(stats, *psSort)
	if *psTop > 0 && len(stats) > *psTop {
		stats = stats[:*psTop]
	}
	return renderTable(os.Stdout, stats, nil, time.Now())
}

func sortStats(stats []process.Stats, by string) {
	slices.SortStableFunc(stats, func(a, b process.Stats) int {
		switch by {
		case "cpu":
			return cmp.Compare(b.CPUUsage, a.CPUUsage)
		case "mem":
			return cmp.Compare(b.MemoryKiB, a.MemoryKiB)
		case "name":
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		return cmp.Compare(a.Pid, b.Pid)
	})
}

// treeOrder lays stats out depth-first from the topology roots. Processes that
// left the snapshot in between are appended at depth zero.
func treeOrder(topo *process.Topology, stats []process.Stats) ([]process.Stats, map[process.Pid]int) {
	byPid := make(map[process.Pid]process.Stats, len(stats))
	for _, s := range stats {
		byPid[s.Pid] = s
	}

	ordered := make([]process.Stats, 0, len(stats))
	depth := make(map[process.Pid]int, len(stats))
	var visit func(pid process.Pid, d int)
	visit = func(pid process.Pid, d int) {
		if _, seen := depth[pid]; seen {
			return
		}
		depth[pid] = d
		if s, ok := byPid[pid]; ok {
			ordered = append(ordered, s)
			delete(byPid, pid)
		}
		for _, child := range topo.Children(pid) {
			visit(child, d+1)
		}
	}
	for _, root := range topo.Roots() {
		visit(root, 0)
	}

	rest := make([]process.Stats, 0, len(byPid))
	for _, s := range byPid {
		rest = append(rest, s)
	}
	sortStats(rest, "pid")
	for _, s := range rest {
		depth[s.Pid] = 0
	}
	return append(ordered, rest...), depth
}

func renderTable(w io.Writer, stats []process.Stats, depth map[process.Pid]int, now time.Time) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PID", "PPID", "NAME", "STATUS", "CPU%", "MEMORY", "STARTED"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, s := range stats {
		ppid := "-"
		if s.HasParent {
			ppid = strconv.FormatUint(uint64(s.Parent), 10)
		}
		name := s.Name
		if depth != nil {
			name = strings.Repeat("  ", depth[s.Pid]) + name
		}

		cpu, mem, started := "-", "-", "-"
		if !s.Degraded {
			cpu = strconv.FormatFloat(s.CPUUsage, 'f', 1, 64)
			mem = humanize.IBytes(s.MemoryKiB << 10)
			if !s.StartTime.IsZero() {
				started = humanize.RelTime(s.StartTime, now, "ago", "from now")
			}
		}
		table.Append([]string{
			strconv.FormatUint(uint64(s.Pid), 10), ppid, name, s.Status.String(), cpu, mem, started,
		})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "%s processes\n", humanize.Comma(int64(len(stats))))
	return err
}
