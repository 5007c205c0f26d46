package dfbuilders

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"
	"log/slog"
	"math"
	"slices"

	"statscollect/internal/dataframe"
	"statscollect/internal/mdc"
	"statscollect/internal/parsers"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// Synthetic interrupts totals, available in every scope.
const (
	TotalMetric    = "Total"
	TotalIRQMetric = "Total_IRQ"
	TotalXYZMetric = "Total_XYZ"
)

// RateSuffix is appended to a count column name to get its rate column name.
const RateSuffix = "_rate"

// DefaultIRQsLimit is the number of hottest numeric IRQs that get a column in every scope.
const DefaultIRQsLimit = 6

var totalMetrics = []string{TotalMetric, TotalIRQMetric, TotalXYZMetric}

// BuildInterrupts builds the interrupts table from a raw interrupts file. For the System scope
// and every CPU in opts.CPUs it includes the totals, every named interrupt, and the
// DefaultIRQsLimit numeric IRQs with the most occurrences between the first and the last
// snapshot. Counters become per-interval counts with a matching "_rate" column, and the first
// row, which has no interval, is dropped.
func BuildInterrupts(in parsers.Input, opts LoadOptions) (*Table, error) {
	parser, err := parsers.NewInterruptsParser(in)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	next := parser.Next
	first, last, err := parser.FirstAndLast()
	if errors.Is(err, parsers.ErrConfig) {
		// not a file, the snapshots have to be kept in memory
		var snaps []*parsers.InterruptsSnapshot
		if snaps, err = readInterrupts(parser); err != nil {
			return nil, err
		}
		if len(snaps) == 0 {
			return nil, emptyError(in, mdc.ToolInterrupts)
		}
		first, last = snaps[0], snaps[len(snaps)-1]
		next = func() (*parsers.InterruptsSnapshot, error) {
			if len(snaps) == 0 {
				return nil, io.EOF
			}
			snap := snaps[0]
			snaps = snaps[1:]
			return snap, nil
		}
	} else if err != nil {
		return nil, err
	}
	countCols, err := interruptsColumns(in, first, last, opts.CPUs)
	if err != nil {
		return nil, err
	}

	frame := dataframe.New()
	order := append([]string{dataframe.TimestampCol, dataframe.TimeElapsedCol}, countCols...)
	var firstTS float64
	for rows := 0; ; rows++ {
		snap, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			firstTS = snap.Timestamp
		}
		row, err := interruptsRow(snap, firstTS, countCols)
		if err != nil {
			return nil, err
		}
		frame.AppendRow(row, order)
	}
	if frame.Len() < 2 {
		return nil, &parsers.FormatError{Path: in.Name(), Offset: -1,
			Msg: "at least two interrupts snapshots are required to compute interrupt counts"}
	}

	intervals, err := frame.Diff(dataframe.TimeElapsedCol)
	if err != nil {
		return nil, err
	}
	col2metric := map[string]string{}
	metrics := []string{dataframe.TimeElapsedCol}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, colname := range countCols {
		counts, err := frame.Diff(colname)
		if err != nil {
			return nil, errors.Wrapf(parsers.ErrBug, "count column '%s' is missing", colname)
		}
		rates := make([]float64, len(counts))
		for i, count := range counts {
			if intervals[i] == 0 {
				rates[i] = math.NaN()
				continue
			}
			rates[i] = count / intervals[i]
		}
		if err := frame.SetColumn(colname, counts); err != nil {
			return nil, err
		}
		if err := frame.SetColumn(colname+RateSuffix, rates); err != nil {
			return nil, err
		}
		_, metric, _ := dataframe.SplitColname(colname)
		col2metric[colname] = metric
		col2metric[colname+RateSuffix] = metric + RateSuffix
		for _, m := range []string{metric, metric + RateSuffix} {
			if seen.Add(m) {
				metrics = append(metrics, m)
			}
		}
	}
	frame.Filter(func(i int) bool { return i > 0 })

	defs, err := mdc.Interrupts(metrics)
	if err != nil {
		return nil, err
	}
	table := newTable(mdc.ToolInterrupts, defs)
	table.Frame = frame
	table.Col2Metric = col2metric
	if err := table.finish(opts); err != nil {
		return nil, err
	}
	return table, nil
}

func readInterrupts(parser *parsers.InterruptsParser) ([]*parsers.InterruptsSnapshot, error) {
	var snaps []*parsers.InterruptsSnapshot
	for {
		snap, err := parser.Next()
		if err == io.EOF {
			return snaps, nil
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
}

// interruptsColumns returns the count column names: for every scope, the totals followed by
// the hottest interrupts.
func interruptsColumns(in parsers.Input, first, last *parsers.InterruptsSnapshot, cpus []int) ([]string, error) {
	lastCPUs := mapset.NewThreadUnsafeSet(last.CPUs...)
	deltas := map[string]int64{}
	missing := mapset.NewThreadUnsafeSet[string]()
	for _, cpu := range first.CPUs {
		if !lastCPUs.Contains(cpu) {
			slog.Warn("CPU is present in the first interrupts snapshot, but missing in the last one, skipping it",
				slog.Int("cpu", cpu), slog.String("path", in.Name()))
			continue
		}
		for _, irq := range first.IRQNames {
			lastCount, ok := last.CPU2IRQs[cpu][irq]
			if !ok {
				missing.Add(irq)
				continue
			}
			deltas[irq] += lastCount - first.CPU2IRQs[cpu][irq]
		}
	}
	for irq := range missing.Iter() {
		slog.Warn("interrupt is present in the first snapshot, but missing in the last one, skipping it",
			slog.String("irq", irq), slog.String("path", in.Name()))
	}

	cols := scopeColumns(dataframe.ScopeSystem, hottestIRQs(first.IRQNames, deltas, DefaultIRQsLimit))
	firstCPUs := mapset.NewThreadUnsafeSet(first.CPUs...)
	for _, cpu := range cpus {
		if !firstCPUs.Contains(cpu) || !lastCPUs.Contains(cpu) {
			return nil, errors.Errorf("no data for CPU%d found in interrupts statistics file '%s'", cpu, in.Name())
		}
		cpuDeltas := map[string]int64{}
		for _, irq := range first.IRQNames {
			if lastCount, ok := last.CPU2IRQs[cpu][irq]; ok {
				cpuDeltas[irq] = lastCount - first.CPU2IRQs[cpu][irq]
			}
		}
		cols = append(cols, scopeColumns(dataframe.CPUScope(cpu), hottestIRQs(first.IRQNames, cpuDeltas, DefaultIRQsLimit))...)
	}
	return cols, nil
}

func scopeColumns(scope string, irqs []string) []string {
	var cols []string
	for _, metric := range append(slices.Clone(totalMetrics), irqs...) {
		cols = append(cols, dataframe.JoinColname(scope, metric))
	}
	return cols
}

// hottestIRQs returns the interrupts in deltas sorted by occurrence count, most frequent first.
// Named interrupts are always included, numeric IRQs only when they occurred, and at most
// limit of them.
func hottestIRQs(names []string, deltas map[string]int64, limit int) []string {
	var candidates []string
	for _, name := range names {
		if _, ok := deltas[name]; ok {
			candidates = append(candidates, name)
		}
	}
	slices.SortStableFunc(candidates, func(a, b string) int {
		switch {
		case deltas[a] > deltas[b]:
			return -1
		case deltas[a] < deltas[b]:
			return 1
		}
		return 0
	})
	var hottest []string
	numeric := 0
	for _, name := range candidates {
		if !parsers.IsNumericIRQ(name) {
			hottest = append(hottest, name)
			continue
		}
		if numeric >= limit || deltas[name] <= 0 {
			continue
		}
		hottest = append(hottest, name)
		numeric++
	}
	return hottest
}

func interruptsRow(snap *parsers.InterruptsSnapshot, firstTS float64, countCols []string) (map[string]float64, error) {
	row := map[string]float64{
		dataframe.TimestampCol:   snap.Timestamp,
		dataframe.TimeElapsedCol: snap.Timestamp - firstTS,
	}
	for _, colname := range countCols {
		scope, metric, _ := dataframe.SplitColname(colname)
		var irqs []map[string]int64
		switch cpu, isCPU := dataframe.ParseCPUScope(scope); {
		case scope == dataframe.ScopeSystem:
			for _, cpu := range snap.CPUs {
				irqs = append(irqs, snap.CPU2IRQs[cpu])
			}
		case isCPU:
			if counts, ok := snap.CPU2IRQs[cpu]; ok {
				irqs = append(irqs, counts)
			}
		default:
			return nil, errors.Wrapf(parsers.ErrBug, "unsupported scope '%s' in column name '%s'", scope, colname)
		}
		if value, ok := sumIRQs(irqs, metric); ok {
			row[colname] = value
		}
	}
	return row, nil
}

// sumIRQs sums the counts of metric over CPUs. Totals sum all interrupts, numeric only or
// named only. ok is false when no CPU has the interrupt.
func sumIRQs(cpus []map[string]int64, metric string) (float64, bool) {
	var sum int64
	found := false
	for _, counts := range cpus {
		for irq, count := range counts {
			var match bool
			switch metric {
			case TotalMetric:
				match = true
			case TotalIRQMetric:
				match = parsers.IsNumericIRQ(irq)
			case TotalXYZMetric:
				match = !parsers.IsNumericIRQ(irq)
			default:
				match = irq == metric
			}
			if match {
				sum += count
				found = true
			}
		}
		if slices.Contains(totalMetrics, metric) {
			found = true
		}
	}
	return float64(sum), found
}
