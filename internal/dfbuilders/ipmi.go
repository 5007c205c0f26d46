package dfbuilders

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"

	"statscollect/internal/dataframe"
	"statscollect/internal/mdc"
	"statscollect/internal/parsers"
)

// BuildIPMI builds the IPMI table. Every sensor of the first snapshot with a known unit gets a
// "<Category>-<sensor>" column. Unreadable sensors are NaN in their row.
func BuildIPMI(in parsers.Input, opts LoadOptions) (*Table, error) {
	parser, err := parsers.NewIPMIParser(in, true)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	first, err := parser.Next()
	if err == io.EOF {
		return nil, emptyError(in, mdc.ToolIPMI)
	}
	if err != nil {
		return nil, err
	}
	defs, err := mdc.IPMI(first)
	if err != nil {
		return nil, err
	}

	table := newTable(mdc.ToolIPMI, defs)
	sensor2col := map[string]string{}
	order := []string{dataframe.TimestampCol, dataframe.TimeElapsedCol}
	for _, name := range defs.Names() {
		def, _ := defs.Get(name)
		if len(def.Categories) == 0 {
			continue
		}
		colname := dataframe.JoinColname(def.Categories[0], name)
		sensor2col[name] = colname
		order = append(order, colname)
		table.Col2Metric[colname] = name
	}

	for snap := first; ; {
		// the parser adds TimeElapsed to every snapshot but the first
		var elapsed float64
		if reading, ok := snap.Readings[parsers.TimeElapsedMetric]; ok {
			elapsed = reading.Value
		}
		row := map[string]float64{
			dataframe.TimestampCol:   snap.Timestamp,
			dataframe.TimeElapsedCol: elapsed,
		}
		for sensor, colname := range sensor2col {
			if reading, ok := snap.Readings[sensor]; ok && reading.Valid {
				row[colname] = reading.Value
			}
		}
		table.Frame.AppendRow(row, order)

		snap, err = parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	for _, colname := range order {
		if !table.Frame.Has(colname) {
			delete(table.Col2Metric, colname)
		}
	}
	if err := table.finish(opts); err != nil {
		return nil, err
	}
	return table, nil
}
