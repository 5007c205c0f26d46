package dfbuilders

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"statscollect/internal/dataframe"
	"statscollect/internal/mdc"
	"statscollect/internal/parsers"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// PkgWattTDPMetric is the package power in percent of the package TDP.
const PkgWattTDPMetric = "PkgWatt%TDP"

const pkgWattMetric = "PkgWatt"

// BuildTurbostat builds the turbostat table: System columns from the snapshot totals and
// CPU<n> columns for every CPU in opts.CPUs, each made of the package, core and CPU metrics.
func BuildTurbostat(in parsers.Input, opts LoadOptions) (*Table, error) {
	parser, err := parsers.NewTurbostatParser(in, true)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	first, err := parser.Next()
	if err == io.EOF {
		return nil, emptyError(in, mdc.ToolTurbostat)
	}
	if err != nil {
		return nil, err
	}
	if _, ok := first.Totals[parsers.TimeOfDayMetric]; !ok {
		return nil, &parsers.FormatError{Path: in.Name(), Offset: -1,
			Msg: fmt.Sprintf("turbostat statistics have no '%s' column", parsers.TimeOfDayMetric)}
	}
	for _, cpu := range opts.CPUs {
		if _, ok := first.CPUMetrics(cpu); !ok {
			return nil, errors.Errorf("no data for CPU%d in turbostat statistics '%s'", cpu, in.Name())
		}
	}

	var tdp float64
	if nontable := parser.Nontable(); nontable != nil {
		tdp = nontable.TDP
	}
	pkgCount := first.PkgCount

	// the first snapshot establishes the schema
	metrics := mapset.NewThreadUnsafeSet[string]()
	metrics.Append(slices.Collect(maps.Keys(first.Totals))...)
	for _, cpu := range opts.CPUs {
		m, _ := first.CPUMetrics(cpu)
		metrics.Append(slices.Collect(maps.Keys(m))...)
	}
	if tdp > 0 && metrics.Contains(pkgWattMetric) {
		metrics.Add(PkgWattTDPMetric)
	}
	names := metrics.ToSlice()
	slices.Sort(names)
	defs, err := mdc.Turbostat(names)
	if err != nil {
		return nil, err
	}

	table := newTable(mdc.ToolTurbostat, defs)
	scopes := []string{dataframe.ScopeSystem}
	for _, cpu := range opts.CPUs {
		scopes = append(scopes, dataframe.CPUScope(cpu))
	}
	order := []string{dataframe.TimestampCol, dataframe.TimeElapsedCol}
	for _, scope := range scopes {
		for _, metric := range defs.Names() {
			if metric == parsers.TimeOfDayMetric || metric == parsers.TimeElapsedMetric || metric == PkgWattTDPMetric {
				continue
			}
			colname := dataframe.JoinColname(scope, metric)
			order = append(order, colname)
			table.Col2Metric[colname] = metric
		}
	}

	firstTS := first.Totals[parsers.TimeOfDayMetric]
	for snap := first; ; {
		table.Frame.AppendRow(turbostatRow(snap, firstTS, opts.CPUs), order)
		snap, err = parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	// columns of metrics not seen in the first snapshot never get values
	for _, colname := range order {
		if !table.Frame.Has(colname) {
			delete(table.Col2Metric, colname)
		}
	}

	if defs.Has(PkgWattTDPMetric) {
		if err := table.addPkgWattTDP(scopes, tdp, pkgCount); err != nil {
			return nil, err
		}
	}
	if err := table.finish(opts); err != nil {
		return nil, err
	}
	return table, nil
}

func turbostatRow(snap *parsers.TurbostatSnapshot, firstTS float64, cpus []int) map[string]float64 {
	row := map[string]float64{}
	ts, ok := snap.Totals[parsers.TimeOfDayMetric]
	if !ok {
		ts = snap.Timestamp
	}
	row[dataframe.TimestampCol] = ts
	row[dataframe.TimeElapsedCol] = ts - firstTS
	for metric, value := range snap.Totals {
		row[dataframe.JoinColname(dataframe.ScopeSystem, metric)] = value
	}
	for _, cpu := range cpus {
		m, ok := snap.CPUMetrics(cpu)
		if !ok {
			slog.Debug("CPU missing from turbostat snapshot", slog.Int("cpu", cpu), slog.Float64("timestamp", ts))
			continue
		}
		for metric, value := range m {
			row[dataframe.JoinColname(dataframe.CPUScope(cpu), metric)] = value
		}
	}
	return row
}

// addPkgWattTDP adds the package power in percent of TDP. The System value relates the total
// power of all packages to the sum of their TDPs.
func (t *Table) addPkgWattTDP(scopes []string, tdp float64, pkgCount int) error {
	for _, scope := range scopes {
		pkgWatt := dataframe.JoinColname(scope, pkgWattMetric)
		if !t.Frame.Has(pkgWatt) {
			continue
		}
		limit := tdp
		if scope == dataframe.ScopeSystem {
			limit = tdp * float64(max(pkgCount, 1))
		}
		expr, err := dataframe.ParseExpression(fmt.Sprintf("[%s] / %s * 100", pkgWatt, strconv.FormatFloat(limit, 'f', -1, 64)))
		if err != nil {
			return err
		}
		colname := dataframe.JoinColname(scope, PkgWattTDPMetric)
		if err := t.Frame.AddExpressionColumn(colname, expr); err != nil {
			return err
		}
		t.Col2Metric[colname] = PkgWattTDPMetric
	}
	return nil
}
