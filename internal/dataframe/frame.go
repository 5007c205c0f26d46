// Package dataframe provides the normalized table built from raw statistics: ordered float64
// columns with one row per snapshot, NaN marking a missing value.
package dataframe

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"maps"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Frame is a column-oriented table. Column names are unique, and every column has Len values.
type Frame struct {
	names  []string
	index  map[string]int
	cols   [][]float64
	labels []string
	nrows  int
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{index: map[string]int{}}
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return f.nrows
}

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.names)
}

// Has reports whether the frame has column name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the values of a column. The slice must not be modified.
func (f *Frame) Column(name string) ([]float64, bool) {
	idx, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[idx], true
}

// Value returns the value at row i of column name, NaN if the column does not exist.
func (f *Frame) Value(name string, i int) float64 {
	idx, ok := f.index[name]
	if !ok || i < 0 || i >= f.nrows {
		return math.NaN()
	}
	return f.cols[idx][i]
}

// Row returns the non-missing values of row i.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.names))
	for idx, name := range f.names {
		if v := f.cols[idx][i]; !math.IsNaN(v) {
			row[name] = v
		}
	}
	return row
}

// Label returns the label of row i, or "" if the row is not labeled.
func (f *Frame) Label(i int) string {
	if f.labels == nil {
		return ""
	}
	return f.labels[i]
}

// SetLabel labels row i.
func (f *Frame) SetLabel(i int, label string) {
	if f.labels == nil {
		f.labels = make([]string, f.nrows)
	}
	f.labels[i] = label
}

// HasLabels reports whether any row was labeled.
func (f *Frame) HasLabels() bool {
	return f.labels != nil
}

func (f *Frame) addColumn(name string) int {
	col := make([]float64, f.nrows, max(f.nrows, 16))
	for i := range col {
		col[i] = math.NaN()
	}
	f.index[name] = len(f.names)
	f.names = append(f.names, name)
	f.cols = append(f.cols, col)
	return len(f.names) - 1
}

// AppendRow adds a row. Columns missing from row get NaN. Columns first seen in row are
// appended in the order given by order (names not in row are ignored), or in sorted order
// when order is nil, and get NaN for all previous rows.
func (f *Frame) AppendRow(row map[string]float64, order []string) {
	if order == nil {
		order = slices.Sorted(maps.Keys(row))
	}
	for _, name := range order {
		if _, ok := row[name]; !ok {
			continue
		}
		if _, ok := f.index[name]; !ok {
			f.addColumn(name)
		}
	}
	for idx, name := range f.names {
		v, ok := row[name]
		if !ok {
			v = math.NaN()
		}
		f.cols[idx] = append(f.cols[idx], v)
	}
	if f.labels != nil {
		f.labels = append(f.labels, "")
	}
	f.nrows++
}

// SetColumn adds or replaces a column. values must have one value per row.
func (f *Frame) SetColumn(name string, values []float64) error {
	if len(values) != f.nrows {
		return errors.Errorf("column '%s' has %d values, the table has %d rows", name, len(values), f.nrows)
	}
	idx, ok := f.index[name]
	if !ok {
		idx = f.addColumn(name)
	}
	f.cols[idx] = slices.Clone(values)
	return nil
}

// DropColumns removes columns. Unknown names are ignored.
func (f *Frame) DropColumns(names ...string) {
	drop := map[string]bool{}
	for _, name := range names {
		drop[name] = true
	}
	var keptNames []string
	var keptCols [][]float64
	for idx, name := range f.names {
		if drop[name] {
			continue
		}
		keptNames = append(keptNames, name)
		keptCols = append(keptCols, f.cols[idx])
	}
	f.names, f.cols = keptNames, keptCols
	f.index = make(map[string]int, len(f.names))
	for idx, name := range f.names {
		f.index[name] = idx
	}
}

// Filter keeps the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) {
	var rows []int
	for i := range f.nrows {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == f.nrows {
		return
	}
	for idx, col := range f.cols {
		kept := make([]float64, len(rows))
		for j, i := range rows {
			kept[j] = col[i]
		}
		f.cols[idx] = kept
	}
	if f.labels != nil {
		kept := make([]string, len(rows))
		for j, i := range rows {
			kept[j] = f.labels[i]
		}
		f.labels = kept
	}
	f.nrows = len(rows)
}

// Diff returns the row-wise difference of a column: value[i] - value[i-1], 0 for the first row.
func (f *Frame) Diff(name string) ([]float64, error) {
	col, ok := f.Column(name)
	if !ok {
		return nil, errors.Errorf("no column '%s'", name)
	}
	diff := make([]float64, len(col))
	for i := 1; i < len(col); i++ {
		diff[i] = col[i] - col[i-1]
	}
	return diff, nil
}
