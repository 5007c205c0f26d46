package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"

	"statscollect/internal/dfbuilders"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const metricsSheetName = "Metrics"

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

// getValueForCell returns the value to store in a cell, nil leaves the cell empty.
func getValueForCell(t *dfbuilders.Table, col string, i int) any {
	if col == LabelCol {
		if label := t.Frame.Label(i); label != "" {
			return label
		}
		return nil
	}
	v := t.Frame.Value(col, i)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// createXlsxReport puts every table on its own sheet and the metric definitions of all tables
// on a last sheet.
func createXlsxReport(res Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cell style")
	}
	sheetName := "Sheet1"
	if len(res.Tables) == 0 {
		_ = f.SetCellValue(sheetName, cellName(1, 1), noDataFound)
	}
	for idx, t := range res.Tables {
		if idx == 0 {
			if err := f.SetSheetName(sheetName, t.Name); err != nil {
				return nil, errors.Wrapf(err, "bad sheet name '%s'", t.Name)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return nil, errors.Wrapf(err, "bad sheet name '%s'", t.Name)
		}
		renderXlsxTable(f, t, boldStyle)
	}
	if err := renderXlsxMetrics(f, res, boldStyle); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "failed to write xlsx report")
	}
	return buf.Bytes(), nil
}

func renderXlsxTable(f *excelize.File, t *dfbuilders.Table, headerStyle int) {
	sheetName := t.Name
	if t.Frame.Len() == 0 {
		_ = f.SetCellValue(sheetName, cellName(1, 1), noDataFound)
		return
	}
	cols := columns(t)
	for j, col := range cols {
		_ = f.SetCellValue(sheetName, cellName(j+1, 1), col)
	}
	_ = f.SetCellStyle(sheetName, cellName(1, 1), cellName(len(cols), 1), headerStyle)
	for i := range t.Frame.Len() {
		for j, col := range cols {
			if value := getValueForCell(t, col, i); value != nil {
				_ = f.SetCellValue(sheetName, cellName(j+1, i+2), value)
			}
		}
	}
	last, err := excelize.ColumnNumberToName(len(cols))
	if err == nil {
		_ = f.SetColWidth(sheetName, "A", last, 15)
	}
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func renderXlsxMetrics(f *excelize.File, res Result, headerStyle int) error {
	if _, err := f.NewSheet(metricsSheetName); err != nil {
		return errors.Wrap(err, "failed to create the metrics sheet")
	}
	headers := []string{"Statistic", "Metric", "Title", "Unit", "Description"}
	for j, header := range headers {
		_ = f.SetCellValue(metricsSheetName, cellName(j+1, 1), header)
	}
	_ = f.SetCellStyle(metricsSheetName, cellName(1, 1), cellName(len(headers), 1), headerStyle)
	row := 2
	for _, t := range res.Tables {
		for _, name := range metrics(t) {
			def, _ := t.Defs.Get(name)
			for j, value := range []string{t.Name, name, def.Title, def.Unit, def.Descr} {
				_ = f.SetCellValue(metricsSheetName, cellName(j+1, row), value)
			}
			row++
		}
	}
	_ = f.SetColWidth(metricsSheetName, "A", "D", 20)
	_ = f.SetColWidth(metricsSheetName, "E", "E", 80)
	return nil
}
