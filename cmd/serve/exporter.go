package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"maps"
	"math"
	"regexp"
	"slices"
	"sync"

	"statscollect/internal/dataframe"
	"statscollect/internal/dfbuilders"

	"github.com/prometheus/client_golang/prometheus"
)

const promMetricPrefix = "statscollect_"

var rxBadMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// exporter keeps one gauge vector per statistic, labeled by report ID, scope and metric, set
// to the values of the last row of the statistic's table.
type exporter struct {
	registry *prometheus.Registry
	mu       sync.Mutex
	gauges   map[string]*prometheus.GaugeVec
	lastTS   *prometheus.GaugeVec
}

func newExporter() *exporter {
	e := &exporter{
		registry: prometheus.NewRegistry(),
		gauges:   map[string]*prometheus.GaugeVec{},
		lastTS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: promMetricPrefix + "last_timestamp_seconds",
				Help: "Time-stamp of the last row of a statistic",
			},
			[]string{"reportid", "stat"},
		),
	}
	e.registry.MustRegister(e.lastTS)
	return e
}

func sanitizeMetricName(name string) string {
	return rxBadMetricChars.ReplaceAllString(name, "_")
}

// gauge returns the gauge vector of a statistic, creating and registering it when needed.
func (e *exporter) gauge(stat string) *prometheus.GaugeVec {
	name := promMetricPrefix + sanitizeMetricName(stat)
	if g, ok := e.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: "Latest " + stat + " statistics",
		},
		[]string{"reportid", "scope", "metric"},
	)
	if err := e.registry.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			g = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			slog.Error("Failed to register Prometheus metric", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	e.gauges[name] = g
	return g
}

// update replaces the values of reportID with the last row of table.
func (e *exporter) update(reportID string, table *dfbuilders.Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.gauge(table.Name)
	g.DeletePartialMatch(prometheus.Labels{"reportid": reportID})
	last := table.Frame.Len() - 1
	if last < 0 {
		e.lastTS.DeleteLabelValues(reportID, table.Name)
		return
	}
	e.lastTS.WithLabelValues(reportID, table.Name).Set(table.Frame.Value(dataframe.TimestampCol, last))
	for _, col := range slices.Sorted(maps.Keys(table.Col2Metric)) {
		v := table.Frame.Value(col, last)
		if math.IsNaN(v) {
			continue
		}
		scope, metric, _ := dataframe.SplitColname(col)
		g.WithLabelValues(reportID, scope, metric).Set(v)
	}
}
