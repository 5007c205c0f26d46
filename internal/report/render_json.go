package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/json"
	"math"

	"statscollect/internal/mdc"
)

type jsonTable struct {
	Columns []string          `json:"columns"`
	Metrics []*mdc.Definition `json:"metrics"`
	// Rows hold the non-missing values of every row, keyed by column name.
	Rows []map[string]any `json:"rows"`
}

type jsonReport struct {
	ReportID string                `json:"reportid"`
	Tables   map[string]*jsonTable `json:"tables"`
}

func createJSONReport(res Result) ([]byte, error) {
	oReport := jsonReport{ReportID: res.ReportID, Tables: make(map[string]*jsonTable, len(res.Tables))}
	for _, t := range res.Tables {
		oTable := &jsonTable{Columns: columns(t), Metrics: []*mdc.Definition{}, Rows: []map[string]any{}}
		for _, name := range metrics(t) {
			def, _ := t.Defs.Get(name)
			oTable.Metrics = append(oTable.Metrics, def)
		}
		for i := range t.Frame.Len() {
			oRecord := make(map[string]any, len(oTable.Columns))
			for _, col := range oTable.Columns {
				if col == LabelCol {
					if label := t.Frame.Label(i); label != "" {
						oRecord[col] = label
					}
					continue
				}
				// JSON has no NaN, missing values are left out
				if v := t.Frame.Value(col, i); !math.IsNaN(v) && !math.IsInf(v, 0) {
					oRecord[col] = v
				}
			}
			oTable.Rows = append(oTable.Rows, oRecord)
		}
		oReport.Tables[t.Name] = oTable
	}
	return json.MarshalIndent(oReport, "", " ")
}
