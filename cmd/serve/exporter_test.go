package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"statscollect/internal/dataframe"
	"statscollect/internal/dfbuilders"
	"statscollect/internal/mdc"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipmiTable(rows ...map[string]float64) *dfbuilders.Table {
	frame := dataframe.New()
	for _, row := range rows {
		frame.AppendRow(row, []string{"Timestamp", "TimeElapsed", "System-Fan1", "System-Pwr"})
	}
	return &dfbuilders.Table{
		Name:       "ipmi-inband",
		Frame:      frame,
		Defs:       mdc.NewDefinitions("ipmi"),
		Col2Metric: map[string]string{"System-Fan1": "Fan1", "System-Pwr": "Pwr"},
	}
}

func scrape(t *testing.T, exp *exporter) string {
	t.Helper()
	server := httptest.NewServer(promhttp.HandlerFor(exp.registry, promhttp.HandlerOpts{}))
	defer server.Close()
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestExporterUpdate(t *testing.T) {
	exp := newExporter()
	exp.update("r1", ipmiTable(
		map[string]float64{"Timestamp": 100, "TimeElapsed": 0, "System-Fan1": 1000, "System-Pwr": 200},
		map[string]float64{"Timestamp": 101, "TimeElapsed": 1, "System-Fan1": 1100},
	))
	text := scrape(t, exp)
	assert.Contains(t, text, `statscollect_ipmi_inband{metric="Fan1",reportid="r1",scope="System"} 1100`)
	// the last row has no power reading
	assert.NotContains(t, text, `metric="Pwr"`)
	assert.Contains(t, text, `statscollect_last_timestamp_seconds{reportid="r1",stat="ipmi-inband"} 101`)

	// a new update replaces the old values
	exp.update("r1", ipmiTable(
		map[string]float64{"Timestamp": 102, "TimeElapsed": 0, "System-Pwr": 210},
	))
	text = scrape(t, exp)
	assert.NotContains(t, text, `metric="Fan1"`)
	assert.Contains(t, text, `statscollect_ipmi_inband{metric="Pwr",reportid="r1",scope="System"} 210`)

	// an empty table removes the report's values
	exp.update("r1", ipmiTable())
	text = scrape(t, exp)
	assert.NotContains(t, text, `reportid="r1"`)
}

func TestSanitizeMetricName(t *testing.T) {
	assert.Equal(t, "ipmi_inband", sanitizeMetricName("ipmi-inband"))
	assert.Equal(t, "turbostat", sanitizeMetricName("turbostat"))
	assert.Equal(t, "a_b_c", sanitizeMetricName("a.b%c"))
}
