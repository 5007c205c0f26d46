package dfbuilders

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"statscollect/internal/dataframe"
	"statscollect/internal/mdc"
	"statscollect/internal/parsers"

	"github.com/pkg/errors"
)

// ACPowerTimeCol is the AC power meter time-stamp column, in seconds since the epoch.
const ACPowerTimeCol = "T"

// BuildACPower builds the AC power table from the power meter CSV file. The header names the
// columns, "T" is the time-stamp and every other column becomes a System column. The last
// record is always dropped because the meter may be stopped while writing it.
func BuildACPower(in parsers.Input, opts LoadOptions) (*Table, error) {
	rd, err := in.Open()
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	r := csv.NewReader(rd)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err == io.EOF {
		return nil, emptyError(in, mdc.ToolACPower)
	}
	if err != nil {
		return nil, acpowerError(in, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	tsIdx := -1
	for i, name := range header {
		if name == ACPowerTimeCol {
			tsIdx = i
			break
		}
	}
	if tsIdx < 0 {
		return nil, &parsers.FormatError{Path: in.Name(), Line: 1, Offset: -1,
			Msg: "the 'T' (time-stamp) column was not found in the AC power CSV header"}
	}

	var records [][]float64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, acpowerError(in, err)
		}
		line, _ := r.FieldPos(0)
		values := make([]float64, len(record))
		for i, field := range record {
			if values[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64); err != nil {
				return nil, &parsers.FormatError{Path: in.Name(), Line: line, Offset: -1,
					Msg: "bad value '" + field + "' in column '" + header[i] + "'"}
			}
		}
		records = append(records, values)
	}
	if len(records) > 0 {
		records = records[:len(records)-1]
	}
	if len(records) == 0 {
		return nil, emptyError(in, mdc.ToolACPower)
	}

	defs, err := mdc.ACPower()
	if err != nil {
		return nil, err
	}
	metrics := []string{dataframe.TimeElapsedCol}
	for i, name := range header {
		if i != tsIdx {
			metrics = append(metrics, name)
		}
	}
	defs.Mangle(metrics, true)
	table := newTable(mdc.ToolACPower, defs)
	order := []string{dataframe.TimestampCol, dataframe.TimeElapsedCol}
	for _, metric := range metrics[1:] {
		if !defs.Has(metric) {
			defs.Add(&mdc.Definition{Name: metric, Title: metric, Scope: dataframe.ScopeSystem})
		}
		colname := dataframe.JoinColname(dataframe.ScopeSystem, metric)
		order = append(order, colname)
		table.Col2Metric[colname] = metric
	}

	firstTS := records[0][tsIdx]
	for _, values := range records {
		row := map[string]float64{
			dataframe.TimestampCol:   values[tsIdx],
			dataframe.TimeElapsedCol: values[tsIdx] - firstTS,
		}
		for i, name := range header {
			if i != tsIdx {
				row[dataframe.JoinColname(dataframe.ScopeSystem, name)] = values[i]
			}
		}
		table.Frame.AppendRow(row, order)
	}
	if err := table.finish(opts); err != nil {
		return nil, err
	}
	return table, nil
}

func acpowerError(in parsers.Input, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &parsers.FormatError{Path: in.Name(), Line: perr.Line, Offset: -1, Msg: perr.Err.Error()}
	}
	return errors.Wrapf(err, "failed to read AC power statistics '%s'", in.Name())
}
