// Package collect samples /proc/interrupts on the local system and writes a raw result: the
// periodic dumps in stats/ and an info.yml describing them.
package collect

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"statscollect/internal/parsers"
	"statscollect/internal/result"
	"statscollect/internal/util"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

const (
	// ToolName is recorded in info.yml and prefixes the interruption sentinel line.
	ToolName = "statscollect"

	DefaultSource   = "/proc/interrupts"
	DefaultInterval = time.Second

	interruptsFileName = "interrupts.raw.txt"
)

// Config selects what and how long to collect.
type Config struct {
	OutputDir string
	// ReportID defaults to "<hostname>-<start time>".
	ReportID string
	ToolVer  string
	// Source is the file to sample, DefaultSource if empty.
	Source   string
	Interval time.Duration
	// Duration stops the collection after the given time, 0 means until the context is done.
	Duration time.Duration
	// Count stops the collection after the given number of snapshots, 0 means no limit.
	Count int
}

// Collector writes periodic snapshots of the interrupts file.
type Collector struct {
	cfg      Config
	now      func() time.Time
	hostInfo func(ctx context.Context) (*result.HostInfo, error)
}

// New validates cfg and returns a collector.
func New(cfg Config) (*Collector, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory was not specified")
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < 0 || cfg.Duration < 0 || cfg.Count < 0 {
		return nil, errors.New("interval, duration and count must not be negative")
	}
	return &Collector{cfg: cfg, now: time.Now, hostInfo: readHostInfo}, nil
}

// Run collects until the duration or count limit is reached or ctx is done. When ctx is done,
// the "interrupted, exiting" sentinel line is appended to the statistics file.
func (c *Collector) Run(ctx context.Context) error {
	start := c.now()
	info, err := c.prepare(ctx, start)
	if err != nil {
		return err
	}
	statsPath := filepath.Join(c.cfg.OutputDir, result.StatsDirName, interruptsFileName)
	file, err := os.Create(statsPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create '%s'", statsPath)
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	slog.Info("collecting interrupts statistics", slog.String("reportid", info.ReportID),
		slog.String("source", c.cfg.Source), slog.String("output", statsPath))

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if c.cfg.Duration > 0 {
		timer := time.NewTimer(c.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}
	count := 0
	for {
		if err := c.snapshot(w); err != nil {
			return err
		}
		count++
		if c.cfg.Count > 0 && count >= c.cfg.Count {
			break
		}
		select {
		case <-ticker.C:
			continue
		case <-deadline:
		case <-ctx.Done():
			slog.Info("collection interrupted", slog.Int("snapshots", count))
			if _, err := fmt.Fprintf(w, "%s: %s\n", ToolName, parsers.InterruptsSentinel); err != nil {
				return errors.Wrap(err, "failed to write the interruption sentinel")
			}
			return c.flush(w, file)
		}
		break
	}
	slog.Info("collection finished", slog.Int("snapshots", count))
	return c.flush(w, file)
}

func (c *Collector) flush(w *bufio.Writer, file *os.File) error {
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write '%s'", file.Name())
	}
	return nil
}

// prepare creates the raw result directory and writes info.yml.
func (c *Collector) prepare(ctx context.Context, start time.Time) (*result.Info, error) {
	infoPath := filepath.Join(c.cfg.OutputDir, result.InfoFileName)
	if util.FileOrDirectoryExists(infoPath) {
		return nil, errors.Errorf("'%s' already contains a raw result", c.cfg.OutputDir)
	}
	for _, dir := range []string{c.cfg.OutputDir, filepath.Join(c.cfg.OutputDir, result.StatsDirName)} {
		if err := util.CreateDirectoryIfNotExists(dir, 0755); err != nil {
			return nil, err
		}
	}
	hostInfo, err := c.hostInfo(ctx)
	if err != nil {
		slog.Warn("failed to get host information", slog.String("error", err.Error()))
	}
	info := &result.Info{
		FormatVersion: result.FormatVersion,
		ToolName:      ToolName,
		ToolVer:       c.cfg.ToolVer,
		ReportID:      c.cfg.ReportID,
		Host:          hostInfo,
		STInfo: map[string]*result.StatInfo{
			result.StatInterrupts: {
				Interval:    c.cfg.Interval.Seconds(),
				InBand:      true,
				ToolPath:    c.cfg.Source,
				Description: "periodic snapshots of " + c.cfg.Source,
				Paths:       result.StatPaths{Stats: interruptsFileName},
			},
		},
	}
	if info.ToolVer == "" {
		info.ToolVer = "dev"
	}
	if info.ReportID == "" {
		hostname := "localhost"
		if hostInfo != nil && hostInfo.Hostname != "" {
			hostname = hostInfo.Hostname
		}
		info.ReportID = hostname + "-" + start.Format("20060102-150405")
	}
	if err := result.WriteInfo(infoPath, info); err != nil {
		return nil, err
	}
	return info, nil
}

// snapshot appends a time-stamp line and the current content of the source.
func (c *Collector) snapshot(w *bufio.Writer) error {
	ts := c.now()
	data, err := os.ReadFile(c.cfg.Source)
	if err != nil {
		return errors.Wrapf(err, "failed to read '%s'", c.cfg.Source)
	}
	if _, err := fmt.Fprintf(w, "timestamp: %.6f\n", float64(ts.UnixNano())/1e9); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "failed to write snapshot")
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		if err := w.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "failed to write snapshot")
		}
	}
	// keep the file parseable if the process is killed
	return w.Flush()
}

func readHostInfo(ctx context.Context) (*result.HostInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get host information")
	}
	info := &result.HostInfo{
		Hostname:      hi.Hostname,
		OS:            hi.OS,
		Platform:      hi.Platform + " " + hi.PlatformVersion,
		KernelVersion: hi.KernelVersion,
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUs = count
	}
	return info, nil
}
