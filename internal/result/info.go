// Package result reads and writes raw results: a directory with an info.yml file describing
// the collected statistics, a stats/ sub-directory with the raw statistics files, and optional
// logs/ and wldata/ sub-directories.
package result

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"maps"
	"os"
	"slices"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Raw result layout.
const (
	InfoFileName = "info.yml"
	StatsDirName = "stats"
	LogsDirName  = "logs"
	WLDataDir    = "wldata"
)

// FormatVersion is the raw result format written by the collector.
const FormatVersion = "1.3"

// StatPaths are the raw statistics file, relative to the stats directory, and the labels file,
// relative to the result directory.
type StatPaths struct {
	Stats  string `yaml:"stats"`
	Labels string `yaml:"labels,omitempty"`
}

// StatInfo describes one collected statistic.
type StatInfo struct {
	// Interval is the time between snapshots in seconds.
	Interval float64 `yaml:"interval,omitempty"`
	// InBand is true when the collector ran on the system under test.
	InBand      bool      `yaml:"inband"`
	ToolPath    string    `yaml:"toolpath,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Paths       StatPaths `yaml:"paths"`
}

// WorkloadInfo describes the workload that ran while the statistics were collected.
type WorkloadInfo struct {
	WLDataPath string `yaml:"wldata_path,omitempty"`
	WLType     string `yaml:"wltype,omitempty"`
}

// HostInfo is the description of the system under test recorded by the local collector.
type HostInfo struct {
	Hostname      string `yaml:"hostname,omitempty"`
	OS            string `yaml:"os,omitempty"`
	Platform      string `yaml:"platform,omitempty"`
	KernelVersion string `yaml:"kernel_version,omitempty"`
	CPUModel      string `yaml:"cpu_model,omitempty"`
	CPUs          int    `yaml:"cpus,omitempty"`
}

// Info is the content of info.yml.
type Info struct {
	FormatVersion string               `yaml:"format_version,omitempty"`
	ToolName      string               `yaml:"toolname"`
	ToolVer       string               `yaml:"toolver"`
	ReportID      string               `yaml:"reportid"`
	CPUs          []int                `yaml:"cpus,omitempty,flow"`
	Host          *HostInfo            `yaml:"host,omitempty"`
	STInfo        map[string]*StatInfo `yaml:"stinfo"`
	WLInfo        *WorkloadInfo        `yaml:"wlinfo,omitempty"`
}

// Validate checks the mandatory keys.
func (i *Info) Validate() error {
	mandatory := []struct{ key, value string }{
		{"toolname", i.ToolName},
		{"toolver", i.ToolVer},
		{"reportid", i.ReportID},
	}
	for _, m := range mandatory {
		if m.value == "" {
			return errors.Errorf("the mandatory '%s' key is missing", m.key)
		}
	}
	for name, st := range i.STInfo {
		if st == nil || st.Paths.Stats == "" {
			return errors.Errorf("statistic '%s' has no raw statistics file path", name)
		}
	}
	return nil
}

// StatNames returns the names of the statistics in sorted order.
func (i *Info) StatNames() []string {
	return slices.Sorted(maps.Keys(i.STInfo))
}

// ReadInfo reads and validates an info.yml file.
func ReadInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read '%s'", path)
	}
	if len(data) == 0 {
		return nil, errors.Errorf("file '%s' is empty", path)
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrapf(err, "failed to parse '%s'", path)
	}
	if err := info.Validate(); err != nil {
		return nil, errors.Wrapf(err, "bad '%s'", path)
	}
	return &info, nil
}

// WriteInfo validates and writes an info.yml file.
func WriteInfo(path string, info *Info) error {
	if err := info.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "failed to marshal raw result information")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write '%s'", path)
	}
	return nil
}
