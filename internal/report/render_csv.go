package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"encoding/csv"

	"github.com/pkg/errors"
)

// createCSVReports renders every table to its own "<reportid>_<stat>.csv" file. Missing values
// are empty fields.
func createCSVReports(res Result) ([]Output, error) {
	var outputs []Output
	for _, t := range res.Tables {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		cols := columns(t)
		if err := w.Write(cols); err != nil {
			return nil, errors.Wrap(err, "failed to write CSV header")
		}
		record := make([]string, len(cols))
		for i := range t.Frame.Len() {
			for j, col := range cols {
				record[j] = cell(t, col, i)
			}
			if err := w.Write(record); err != nil {
				return nil, errors.Wrapf(err, "failed to write CSV record of '%s'", t.Name)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, errors.Wrapf(err, "failed to write CSV report of '%s'", t.Name)
		}
		outputs = append(outputs, Output{Name: res.ReportID + "_" + t.Name + "." + FormatCSV, Data: buf.Bytes()})
	}
	return outputs, nil
}
