// Package report renders the normalized statistics tables of a raw result as text, JSON, CSV
// or Excel files.
package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"statscollect/internal/dataframe"
	"statscollect/internal/dfbuilders"

	"github.com/pkg/errors"
)

const (
	FormatTxt  = "txt"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXlsx = "xlsx"
	FormatAll  = "all"
)

var FormatOptions = []string{FormatTxt, FormatJSON, FormatCSV, FormatXlsx}

// LabelCol is the name of the column holding the row labels.
const LabelCol = "Label"

const noDataFound = "No data found."

// Result is the set of tables loaded from one raw result.
type Result struct {
	ReportID string
	Tables   []*dfbuilders.Table
}

// Options tune the renderers.
type Options struct {
	// Width is the maximum line width of the text report, 0 means unlimited. Wider tables are
	// split into chunks of columns.
	Width int
}

// Output is one rendered file.
type Output struct {
	// Name is the file name, without a directory.
	Name string
	Data []byte
}

// Create renders res in format. The CSV format produces one file per table, the other formats
// produce a single file.
func Create(format string, res Result, opts Options) ([]Output, error) {
	if res.ReportID == "" {
		return nil, errors.New("report ID is required")
	}
	var data []byte
	var err error
	switch format {
	case FormatTxt:
		data, err = createTextReport(res, opts)
	case FormatJSON:
		data, err = createJSONReport(res)
	case FormatXlsx:
		data, err = createXlsxReport(res)
	case FormatCSV:
		return createCSVReports(res)
	default:
		return nil, errors.Errorf("unsupported report format: %s", format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s report for '%s'", format, res.ReportID)
	}
	return []Output{{Name: res.ReportID + "." + format, Data: data}}, nil
}

// ParseFormats expands a list of format names, "all" selects every format.
func ParseFormats(formats []string) ([]string, error) {
	var out []string
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == FormatAll {
			return slices.Clone(FormatOptions), nil
		}
		if !slices.Contains(FormatOptions, format) {
			return nil, errors.Errorf("format options are: %s, %s", FormatAll, strings.Join(FormatOptions, ", "))
		}
		if !slices.Contains(out, format) {
			out = append(out, format)
		}
	}
	return out, nil
}

// columns returns the columns of a table in output order: the label column first, when the
// table is labeled, then the frame columns.
func columns(t *dfbuilders.Table) []string {
	cols := t.Frame.Columns()
	if t.Frame.HasLabels() {
		cols = append([]string{LabelCol}, cols...)
	}
	return cols
}

// metrics returns the metrics found in the table columns, in definitions order.
func metrics(t *dfbuilders.Table) []string {
	found := map[string]bool{}
	for _, metric := range t.Col2Metric {
		found[metric] = true
	}
	var out []string
	for _, name := range t.Defs.Names() {
		if found[name] {
			out = append(out, name)
		}
	}
	return out
}

// cell returns the value at row i of column col as a string, "" for a missing value.
func cell(t *dfbuilders.Table, col string, i int) string {
	if col == LabelCol {
		return t.Frame.Label(i)
	}
	return formatFloat(t.Frame.Value(col, i))
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// isKeyCol reports whether col identifies the row rather than holding a metric value.
func isKeyCol(col string) bool {
	return col == LabelCol || dataframe.IsTimeCol(col)
}
