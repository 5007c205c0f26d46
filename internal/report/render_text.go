package report

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"math"
	"strings"

	"statscollect/internal/dfbuilders"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// one space of padding on both sides plus the column separator
const columnOverhead = 3

func createTextReport(res Result, opts Options) ([]byte, error) {
	var sb strings.Builder
	// use printer to get commas at thousands, e.g., 1,234,567.89
	p := message.NewPrinter(language.English)
	for _, t := range res.Tables {
		title := fmt.Sprintf("%s: %s", res.ReportID, t.Name)
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("=", len(title)) + "\n")
		if t.Frame.Len() == 0 {
			sb.WriteString(noDataFound + "\n\n")
			continue
		}
		cols := columns(t)
		values := make(map[string][]string, len(cols))
		for _, col := range cols {
			values[col] = textValues(t, col, p)
		}
		for _, chunk := range chunkColumns(cols, values, opts.Width) {
			sb.WriteString(renderTextTable(chunk, values, t.Frame.Len()))
			sb.WriteString("\n")
		}
		sb.WriteString(renderTextLegend(t))
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

func textValues(t *dfbuilders.Table, col string, p *message.Printer) []string {
	out := make([]string, t.Frame.Len())
	for i := range out {
		if isKeyCol(col) {
			out[i] = cell(t, col, i)
			continue
		}
		v := t.Frame.Value(col, i)
		switch {
		case math.IsNaN(v):
			out[i] = "-"
		case v == math.Trunc(v) && math.Abs(v) < 1e15:
			out[i] = p.Sprintf("%d", int64(v))
		default:
			out[i] = p.Sprintf("%.2f", v)
		}
	}
	return out
}

func columnWidth(col string, values []string) int {
	width := lipgloss.Width(col)
	for _, v := range values {
		width = max(width, lipgloss.Width(v))
	}
	return width + columnOverhead
}

// chunkColumns splits the columns into groups that fit in width. The label and time columns
// are repeated in every group.
func chunkColumns(cols []string, values map[string][]string, width int) [][]string {
	var keys, data []string
	for _, col := range cols {
		if isKeyCol(col) {
			keys = append(keys, col)
		} else {
			data = append(data, col)
		}
	}
	if width <= 0 || len(data) == 0 {
		return [][]string{cols}
	}
	keysWidth := 1
	for _, col := range keys {
		keysWidth += columnWidth(col, values[col])
	}
	var chunks [][]string
	chunk := append([]string(nil), keys...)
	chunkWidth := keysWidth
	for _, col := range data {
		w := columnWidth(col, values[col])
		if len(chunk) > len(keys) && chunkWidth+w > width {
			chunks = append(chunks, chunk)
			chunk = append([]string(nil), keys...)
			chunkWidth = keysWidth
		}
		chunk = append(chunk, col)
		chunkWidth += w
	}
	return append(chunks, chunk)
}

func renderTextTable(cols []string, values map[string][]string, nrows int) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(cols...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for i := range nrows {
		row := make([]string, len(cols))
		for j, col := range cols {
			row[j] = values[col][i]
		}
		tbl.Row(row...)
	}
	return tbl.String() + "\n"
}

func renderTextLegend(t *dfbuilders.Table) string {
	var sb strings.Builder
	for _, name := range metrics(t) {
		def, _ := t.Defs.Get(name)
		sb.WriteString(fmt.Sprintf("  %s: %s", name, def.Title))
		if def.Unit != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", def.Unit))
		}
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Metrics:\n" + sb.String()
}
