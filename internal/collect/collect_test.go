package collect

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"statscollect/internal/parsers"
	"statscollect/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procInterrupts = `           CPU0       CPU1
  0:         10          0   IO-APIC    2-edge      timer
LOC:        100        200   Local timer interrupts
`

func newTestCollector(t *testing.T, cfg Config) (*Collector, string) {
	t.Helper()
	tmp := t.TempDir()
	source := filepath.Join(tmp, "interrupts")
	require.NoError(t, os.WriteFile(source, []byte(procInterrupts), 0644))
	cfg.Source = source
	cfg.OutputDir = filepath.Join(tmp, "result")
	c, err := New(cfg)
	require.NoError(t, err)
	c.hostInfo = func(context.Context) (*result.HostInfo, error) {
		return &result.HostInfo{Hostname: "test-host", CPUs: 2}, nil
	}
	return c, cfg.OutputDir
}

func readSnapshots(t *testing.T, path string) []*parsers.InterruptsSnapshot {
	t.Helper()
	p, err := parsers.NewInterruptsParser(parsers.FromPath(path))
	require.NoError(t, err)
	var snaps []*parsers.InterruptsSnapshot
	for {
		snap, err := p.Next()
		if errors.Is(err, io.EOF) {
			return snaps
		}
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}
}

func TestRunCount(t *testing.T) {
	c, dir := newTestCollector(t, Config{Interval: time.Millisecond, Count: 3, ToolVer: "1.0"})
	require.NoError(t, c.Run(context.Background()))

	snaps := readSnapshots(t, filepath.Join(dir, result.StatsDirName, interruptsFileName))
	require.Len(t, snaps, 3)
	assert.Equal(t, []int{0, 1}, snaps[0].CPUs)
	assert.Equal(t, []string{"IRQ0", "LOC"}, snaps[0].IRQNames)
	assert.Equal(t, int64(200), snaps[2].CPU2IRQs[1]["LOC"])

	res, err := result.Open(dir, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ReportID, "test-host-"))
	assert.Equal(t, ToolName, res.Info.ToolName)
	assert.Equal(t, "1.0", res.Info.ToolVer)
	assert.Equal(t, 2, res.Info.Host.CPUs)
	assert.Equal(t, []string{result.StatInterrupts}, res.StatNames())

	table, err := res.LoadStat(result.StatInterrupts, []int{1})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Frame.Len())
	assert.True(t, table.Frame.Has("System-LOC"))
	assert.True(t, table.Frame.Has("CPU1-LOC"))
	assert.Equal(t, 0.0, table.Frame.Value("CPU1-LOC", 0))
}

func TestRunInterrupted(t *testing.T) {
	c, dir := newTestCollector(t, Config{Interval: time.Hour, ReportID: "stopped"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	path := filepath.Join(dir, result.StatsDirName, interruptsFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), ToolName+": "+parsers.InterruptsSentinel+"\n"))
	assert.Len(t, readSnapshots(t, path), 1)

	info, err := result.ReadInfo(filepath.Join(dir, result.InfoFileName))
	require.NoError(t, err)
	assert.Equal(t, "stopped", info.ReportID)
	assert.Equal(t, 3600.0, info.STInfo[result.StatInterrupts].Interval)
}

func TestRunDuration(t *testing.T) {
	c, dir := newTestCollector(t, Config{Interval: time.Hour, Duration: 10 * time.Millisecond})
	require.NoError(t, c.Run(context.Background()))

	path := filepath.Join(dir, result.StatsDirName, interruptsFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), parsers.InterruptsSentinel)
	assert.Len(t, readSnapshots(t, path), 1)
}

func TestRunErrors(t *testing.T) {
	t.Run("existing result", func(t *testing.T) {
		c, _ := newTestCollector(t, Config{Count: 1})
		require.NoError(t, c.Run(context.Background()))
		assert.Error(t, c.Run(context.Background()))
	})
	t.Run("missing source", func(t *testing.T) {
		c, _ := newTestCollector(t, Config{Count: 1})
		c.cfg.Source = filepath.Join(t.TempDir(), "nonexistent")
		assert.Error(t, c.Run(context.Background()))
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		expectErr bool
	}{
		{name: "defaults", cfg: Config{OutputDir: "out"}},
		{name: "no output dir", cfg: Config{}, expectErr: true},
		{name: "negative interval", cfg: Config{OutputDir: "out", Interval: -time.Second}, expectErr: true},
		{name: "negative count", cfg: Config{OutputDir: "out", Count: -1}, expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DefaultSource, c.cfg.Source)
			assert.Equal(t, DefaultInterval, c.cfg.Interval)
		})
	}
}
