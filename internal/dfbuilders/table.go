// Package dfbuilders turns the snapshot streams of the raw statistics parsers into normalized
// tables: one row per snapshot, "<scope>-<metric>" columns and the Timestamp and TimeElapsed
// time columns.
package dfbuilders

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"math"

	"statscollect/internal/dataframe"
	"statscollect/internal/mdc"
	"statscollect/internal/parsers"

	"github.com/pkg/errors"
)

// Label names supported in labels files.
const (
	LabelStart = "start"
	LabelSkip  = "skip"
)

// Label marks the rows from its time-stamp up to the next label's time-stamp. Rows under a
// "skip" label are removed, rows under other labels get the label name and the label metrics.
type Label struct {
	Name    string             `json:"name"`
	TS      float64            `json:"ts"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// TimeWindow limits a table to the rows with begin <= Timestamp <= end. With Relative set,
// begin and end are seconds since the first row.
type TimeWindow struct {
	Begin    float64
	End      float64
	Relative bool
}

// Validate checks that the window is not empty.
func (w *TimeWindow) Validate() error {
	if w.Begin >= w.End {
		return errors.Errorf("bad time-stamp limits: begin time-stamp (%g) must be smaller than the end time-stamp (%g)",
			w.Begin, w.End)
	}
	return nil
}

// LoadOptions select what a builder puts in the table.
type LoadOptions struct {
	// CPUs lists the CPUs that get per-CPU columns in addition to the System columns.
	CPUs   []int
	Labels []Label
	Window *TimeWindow
}

// Table is the result of a builder.
type Table struct {
	// Name is the statistic name, e.g. "turbostat".
	Name  string
	Frame *dataframe.Frame
	// Defs describes the metrics found in the table columns.
	Defs *mdc.Definitions
	// Col2Metric maps every scoped column to its metric name.
	Col2Metric map[string]string
}

func newTable(name string, defs *mdc.Definitions) *Table {
	return &Table{Name: name, Frame: dataframe.New(), Defs: defs, Col2Metric: map[string]string{}}
}

// finish applies the labels and the time window of opts.
func (t *Table) finish(opts LoadOptions) error {
	if len(opts.Labels) > 0 {
		if err := t.applyLabels(opts.Labels); err != nil {
			return err
		}
	}
	if opts.Window != nil {
		if err := t.applyWindow(*opts.Window); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) applyLabels(labels []Label) error {
	f := t.Frame
	ts, ok := f.Column(dataframe.TimestampCol)
	if !ok || f.Len() == 0 {
		return errors.Errorf("cannot apply labels to the %s table: no data", t.Name)
	}
	if labels[0].TS > ts[len(ts)-1] {
		return errors.Errorf("first label's time-stamp %g is after the last %s data point (%g)",
			labels[0].TS, t.Name, ts[len(ts)-1])
	}
	skip := make([]bool, f.Len())
	for i, label := range labels {
		end := math.Inf(1)
		if i < len(labels)-1 {
			end = labels[i+1].TS
		}
		var rows []int
		for row, v := range ts {
			if v >= label.TS && v < end {
				rows = append(rows, row)
			}
		}
		if label.Name == LabelSkip {
			for _, row := range rows {
				skip[row] = true
			}
			continue
		}
		for _, row := range rows {
			f.SetLabel(row, label.Name)
		}
		for metric, value := range label.Metrics {
			colname := dataframe.JoinColname(dataframe.ScopeSystem, metric)
			values, ok := f.Column(colname)
			if !ok {
				values = make([]float64, f.Len())
				for i := range values {
					values[i] = math.NaN()
				}
				t.Col2Metric[colname] = metric
				if !t.Defs.Has(metric) {
					t.Defs.Add(&mdc.Definition{Name: metric, Title: metric, Scope: dataframe.ScopeSystem})
				}
			} else {
				values = append([]float64(nil), values...)
			}
			for _, row := range rows {
				values[row] = value
			}
			if err := f.SetColumn(colname, values); err != nil {
				return err
			}
		}
	}
	before := f.Len()
	f.Filter(func(i int) bool { return !skip[i] })
	if dropped := before - f.Len(); dropped > 0 {
		slog.Debug("dropped rows under 'skip' labels", slog.String("stat", t.Name), slog.Int("rows", dropped))
	}
	return nil
}

func (t *Table) applyWindow(w TimeWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	f := t.Frame
	ts, ok := f.Column(dataframe.TimestampCol)
	if !ok || f.Len() == 0 {
		return nil
	}
	begin, end := w.Begin, w.End
	if w.Relative {
		begin += ts[0]
		end += ts[0]
	}
	f.Filter(func(i int) bool { return ts[i] >= begin && ts[i] <= end })
	if f.Len() == 0 {
		slog.Warn("no data points within the time-stamp limits", slog.String("stat", t.Name),
			slog.Float64("begin", begin), slog.Float64("end", end))
	}
	return nil
}

// emptyError reports raw statistics that do not contain a single usable snapshot.
func emptyError(in parsers.Input, tool string) error {
	return &parsers.FormatError{Path: in.Name(), Offset: -1, Msg: "empty or incorrectly formatted " + tool + " statistics"}
}
