package result

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"statscollect/internal/dfbuilders"
	"statscollect/internal/parsers"
	"statscollect/internal/util"

	"github.com/pkg/errors"
)

// Workload types.
const (
	WLTypeGeneric     = "generic"
	WLTypeSPECjbb2015 = "specjbb2015"
)

// Statistic names supported by LoadStat.
const (
	StatTurbostat  = "turbostat"
	StatInterrupts = "interrupts"
	StatACPower    = "acpower"
	StatIPMIInBand = "ipmi-inband"
	StatIPMIOOB    = "ipmi-oob"
)

type builderFunc func(parsers.Input, dfbuilders.LoadOptions) (*dfbuilders.Table, error)

var builders = map[string]builderFunc{
	StatTurbostat:  dfbuilders.BuildTurbostat,
	StatInterrupts: dfbuilders.BuildInterrupts,
	StatACPower:    dfbuilders.BuildACPower,
	StatIPMIInBand: dfbuilders.BuildIPMI,
	StatIPMIOOB:    dfbuilders.BuildIPMI,
}

// IsSupportedStat reports whether LoadStat can build a table for the statistic.
func IsSupportedStat(name string) bool {
	_, ok := builders[name]
	return ok
}

// maxDupReportIDs limits the "-NN" suffixes tried for a duplicate report ID.
const maxDupReportIDs = 20

// RawResult is an opened raw result directory.
type RawResult struct {
	Dir        string
	ReportID   string
	Info       *Info
	StatsDir   string // "" if the result has no statistics
	LogsDir    string // "" if the result has no logs
	WLDataDir  string // "" if the result has no workload data
	WLType     string
	SPECjbb    *parsers.SPECjbbSummary // set for SPECjbb2015 results
	window     *dfbuilders.TimeWindow
	labelCache map[string][]dfbuilders.Label
}

// Open opens the raw result in dir. A non-empty reportID overrides the one in info.yml.
func Open(dir, reportID string) (*RawResult, error) {
	if dir == "" {
		return nil, errors.New("raw result directory path was not specified")
	}
	if exists, err := util.DirectoryExists(dir); err != nil {
		return nil, errors.Wrapf(err, "bad raw result path '%s'", dir)
	} else if !exists {
		return nil, errors.Errorf("raw result directory '%s' does not exist", dir)
	}
	infoPath := filepath.Join(dir, InfoFileName)
	if exists, err := util.FileExists(infoPath); err != nil {
		return nil, errors.Wrapf(err, "bad '%s'", infoPath)
	} else if !exists {
		return nil, errors.Errorf("no '%s' file found in '%s'", InfoFileName, dir)
	}
	info, err := ReadInfo(infoPath)
	if err != nil {
		return nil, err
	}
	if reportID != "" {
		info.ReportID = reportID
	}
	res := &RawResult{Dir: dir, ReportID: info.ReportID, Info: info, labelCache: map[string][]dfbuilders.Label{}}
	if res.StatsDir, err = optionalDir(filepath.Join(dir, StatsDirName)); err != nil {
		return nil, err
	}
	if res.LogsDir, err = optionalDir(filepath.Join(dir, LogsDirName)); err != nil {
		return nil, err
	}
	if err := res.detectWLType(); err != nil {
		return nil, err
	}
	return res, nil
}

func optionalDir(path string) (string, error) {
	exists, err := util.DirectoryExists(path)
	if err != nil {
		return "", errors.Wrapf(err, "bad raw result sub-directory '%s'", path)
	}
	if !exists {
		return "", nil
	}
	return path, nil
}

func (r *RawResult) detectWLType() error {
	r.WLType = WLTypeGeneric
	dir, err := optionalDir(filepath.Join(r.Dir, WLDataDir))
	if err != nil || dir == "" {
		return err
	}
	r.WLDataDir = dir
	summary, err := detectSPECjbb(dir)
	if err != nil {
		slog.Warn("workload type detection failed", slog.String("reportid", r.ReportID), slog.String("error", err.Error()))
	} else if summary != nil {
		r.WLType = WLTypeSPECjbb2015
		r.SPECjbb = summary
	}
	slog.Debug("detected workload type", slog.String("reportid", r.ReportID), slog.String("wltype", r.WLType))
	return nil
}

// detectSPECjbb returns the SPECjbb2015 run summary, or nil if dir has no SPECjbb2015
// controller output and log.
func detectSPECjbb(dir string) (*parsers.SPECjbbSummary, error) {
	outPath := filepath.Join(dir, "controller.out")
	logPath := filepath.Join(dir, "controller.log")
	for _, path := range []string{outPath, logPath} {
		if exists, err := util.FileExists(path); err != nil || !exists {
			return nil, err
		}
	}
	out, err := parsers.NewSPECjbbCtrlOutParser(parsers.FromPath(outPath))
	if err != nil {
		return nil, err
	}
	defer out.Close()
	log, err := parsers.NewSPECjbbCtrlLogParser(parsers.FromPath(logPath))
	if err != nil {
		return nil, err
	}
	defer log.Close()
	for _, probe := range []func() error{out.Probe, log.Probe} {
		if err := probe(); err != nil {
			if parsers.IsBadFormat(err) {
				slog.Debug("SPECjbb2015 probe is negative", slog.String("error", err.Error()))
				return nil, nil
			}
			return nil, err
		}
	}
	outInfo, err := out.Next()
	if err != nil {
		return nil, err
	}
	logInfo, err := log.Next()
	if err != nil {
		return nil, err
	}
	return parsers.CrossCheckSPECjbb(logInfo, outInfo)
}

// SetTimeWindow limits the rows of every statistic loaded afterwards.
func (r *RawResult) SetTimeWindow(begin, end float64, relative bool) error {
	w := &dfbuilders.TimeWindow{Begin: begin, End: end, Relative: relative}
	if err := w.Validate(); err != nil {
		return err
	}
	r.window = w
	slog.Debug("set time-stamp limits", slog.String("reportid", r.ReportID), slog.Float64("begin", begin),
		slog.Float64("end", end), slog.Bool("relative", relative))
	return nil
}

// LimitToSPECjbbRTCurve limits the statistics to the SPECjbb2015 response-time curve, the
// rest of the run is usually uninteresting. It does nothing for other workloads.
func (r *RawResult) LimitToSPECjbbRTCurve() error {
	if r.SPECjbb == nil {
		return nil
	}
	return r.SetTimeWindow(float64(r.SPECjbb.FirstLevelTS), float64(r.SPECjbb.LastLevelTS), false)
}

// StatNames returns the names of the statistics in the result.
func (r *RawResult) StatNames() []string {
	return r.Info.StatNames()
}

// StatsPath returns the path of the raw statistics file of a statistic.
func (r *RawResult) StatsPath(name string) (string, error) {
	st, ok := r.Info.STInfo[name]
	if !ok {
		return "", errors.Errorf("raw '%s' statistics file path not found in '%s'", name, filepath.Join(r.Dir, InfoFileName))
	}
	if r.StatsDir == "" {
		return "", errors.Errorf("'%s' does not have the statistics sub-directory", r.Dir)
	}
	path := filepath.Join(r.StatsDir, st.Paths.Stats)
	if !util.FileOrDirectoryExists(path) {
		return "", errors.Errorf("raw '%s' statistics file not found at path: %s", name, path)
	}
	return path, nil
}

// Labels returns the labels of a statistic, or nil if it has no labels file.
func (r *RawResult) Labels(name string) ([]dfbuilders.Label, error) {
	st, ok := r.Info.STInfo[name]
	if !ok || st.Paths.Labels == "" {
		return nil, nil
	}
	path := filepath.Join(r.Dir, st.Paths.Labels)
	if labels, ok := r.labelCache[path]; ok {
		return labels, nil
	}
	if !util.FileOrDirectoryExists(path) {
		return nil, errors.Errorf("no labels file found for statistic '%s' at path: %s", name, path)
	}
	labels, err := LoadLabels(path)
	if err != nil {
		return nil, err
	}
	r.labelCache[path] = labels
	return labels, nil
}

// LoadStat builds the table of a statistic, with System columns and columns for cpus.
func (r *RawResult) LoadStat(name string, cpus []int) (*dfbuilders.Table, error) {
	build, ok := builders[name]
	if !ok {
		return nil, errors.Errorf("unsupported statistic '%s'", name)
	}
	path, err := r.StatsPath(name)
	if err != nil {
		return nil, err
	}
	labels, err := r.Labels(name)
	if err != nil {
		return nil, err
	}
	slog.Debug("loading statistic", slog.String("reportid", r.ReportID), slog.String("stat", name), slog.String("path", path))
	table, err := build(parsers.FromPath(path), dfbuilders.LoadOptions{CPUs: cpus, Labels: labels, Window: r.window})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load '%s' statistics of report '%s'", name, r.ReportID)
	}
	table.Name = name
	return table, nil
}

// DedupReportIDs makes the report IDs of results unique by appending "-01", "-02", etc. to
// duplicates.
func DedupReportIDs(results []*RawResult) error {
	seen := map[string]bool{}
	for _, res := range results {
		if seen[res.ReportID] {
			id := res.ReportID
			for idx := 1; ; idx++ {
				if idx >= maxDupReportIDs {
					return errors.Errorf("too many duplicate report IDs, e.g., '%s' is problematic", id)
				}
				candidate := fmt.Sprintf("%s-%02d", id, idx)
				if !seen[candidate] {
					slog.Warn("duplicate report ID", slog.String("reportid", id), slog.String("using", candidate))
					res.ReportID = candidate
					break
				}
			}
		}
		seen[res.ReportID] = true
	}
	return nil
}
