package result

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"statscollect/internal/dfbuilders"
	"statscollect/internal/parsers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infoYAML = `toolname: stats-collect
toolver: 1.0.0
reportid: sut1
stinfo:
  interrupts:
    interval: 1
    inband: true
    toolpath: /usr/bin/cat
    description: interrupts statistics
    paths:
      stats: interrupts.raw.txt
      labels: labels.txt
  turbostat:
    interval: 1
    inband: true
    paths:
      stats: turbostat.raw.txt
`

const interruptsRaw = `timestamp: 100.0
CPU0 CPU1
1: 5 10
timestamp: 101.0
CPU0 CPU1
1: 8 12
`

const labelsJSONL = `# labels written by the workload
{"name": "start", "ts": 100, "metrics": {"Freq": 2000}}
`

const specjbbCtrlLog = `<Mon Jan 15 10:00:00 UTC 2024> org.spec.jbb.ic: Init IC
<Mon Jan 15 10:00:05 UTC 2024> org.spec.jbb.controller: searching for high-bound
<Mon Jan 15 10:05:00 UTC 2024> org.spec.jbb.controller: high-bound for max-jOPS is measured to be 10000
<Mon Jan 15 10:10:00 UTC 2024> org.spec.jbb.controller: RT curve for IR = 100 ( 1%*hbIR)
<Mon Jan 15 10:13:00 UTC 2024> org.spec.jbb.controller: RT_CURVE: IR = 100 finished, steady status = [OK] (rIR:aIR:PR = 100:100:100)
<Mon Jan 15 10:13:05 UTC 2024> org.spec.jbb.controller: RT curve for IR = 200 ( 2%*hbIR)
<Mon Jan 15 10:16:00 UTC 2024> org.spec.jbb.controller: RT_CURVE: IR = 200 finished, steady status = [OK] (rIR:aIR:PR = 200:200:200)
<Mon Jan 15 10:16:05 UTC 2024> org.spec.jbb.controller: RT curve for IR = 300 ( 3%*hbIR)
<Mon Jan 15 10:19:00 UTC 2024> org.spec.jbb.controller: RT_CURVE: IR = 300 finished, steady status = [OK] (rIR:aIR:PR = 300:300:300)
<Mon Jan 15 10:19:05 UTC 2024> org.spec.jbb.controller: RT curve for IR = 400 ( 4%*hbIR)
<Mon Jan 15 10:22:00 UTC 2024> org.spec.jbb.controller: RT_CURVE: IR = 400 finished, settle status = [FAILED] (rIR:aIR:PR = 400:380:360)
<Mon Jan 15 10:22:05 UTC 2024> org.spec.jbb.controller: RT curve for IR = 500 ( 5%*hbIR)
`

const specjbbCtrlOut = `
SPECjbb2015 Java Business Benchmark
  (c) Standard Performance Evaluation Corporation, 2015

   300s: high-bound for max-jOPS is measured to be 10000
   600s: Building throughput-responsetime curve
   780s: (  1%) IR =   100 ........ (rIR:aIR:PR = 100:100:100) (tPR = 1000) [OK]
   960s: (  2%) IR =   200 ........ (rIR:aIR:PR = 200:200:199) (tPR = 2000) [OK]
  1140s: (  3%) IR =   300 ........ (rIR:aIR:PR = 300:299:298) (tPR = 3000) [OK]
  1320s: (  4%) IR =   400 ..|..?.. (rIR:aIR:PR = 400:380:360) (tPR = 4000) [settle FAILED]
RUN RESULT: hbIR (max attempted) = 10000, hbIR (settled) = 9500, max-jOPS = 300, critical-jOPS = 150
`

// writeFiles creates files under dir, paths are relative to dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func newResultDir(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		InfoFileName:               infoYAML,
		"labels.txt":               labelsJSONL,
		"stats/interrupts.raw.txt": interruptsRaw,
		"logs/stats-collect.log":   "",
	})
	writeFiles(t, dir, extra)
	return dir
}

func TestOpen(t *testing.T) {
	dir := newResultDir(t, nil)
	res, err := Open(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "sut1", res.ReportID)
	assert.Equal(t, "stats-collect", res.Info.ToolName)
	assert.Equal(t, []string{"interrupts", "turbostat"}, res.StatNames())
	assert.Equal(t, filepath.Join(dir, StatsDirName), res.StatsDir)
	assert.Equal(t, filepath.Join(dir, LogsDirName), res.LogsDir)
	assert.Equal(t, WLTypeGeneric, res.WLType)
	assert.Nil(t, res.SPECjbb)
	st := res.Info.STInfo["interrupts"]
	assert.Equal(t, 1.0, st.Interval)
	assert.True(t, st.InBand)
	assert.Equal(t, "labels.txt", st.Paths.Labels)

	res, err = Open(dir, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", res.ReportID)
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{name: "no info", files: map[string]string{"stats/x": ""}, want: "no 'info.yml'"},
		{name: "empty info", files: map[string]string{InfoFileName: ""}, want: "empty"},
		{name: "not yaml", files: map[string]string{InfoFileName: "toolname: [x"}, want: "failed to parse"},
		{name: "no report ID", files: map[string]string{InfoFileName: "toolname: x\ntoolver: 1\n"}, want: "reportid"},
		{name: "no stats path", files: map[string]string{InfoFileName: "toolname: x\ntoolver: 1\nreportid: r\nstinfo:\n  ipmi-oob:\n    inband: false\n"},
			want: "ipmi-oob"},
		{name: "stats is a file", files: map[string]string{InfoFileName: infoYAML, StatsDirName: "x"}, want: "not a directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, tt.files)
			_, err := Open(dir, "")
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Open("", "")
	assert.Error(t, err)
	_, err = Open(filepath.Join(t.TempDir(), "missing"), "")
	assert.ErrorContains(t, err, "does not exist")
}

func TestLoadStat(t *testing.T) {
	res, err := Open(newResultDir(t, nil), "")
	require.NoError(t, err)

	table, err := res.LoadStat(StatInterrupts, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, StatInterrupts, table.Name)
	require.Equal(t, 1, table.Frame.Len())
	assert.Equal(t, 3.0, table.Frame.Value("CPU0-IRQ1", 0))
	assert.Equal(t, 2000.0, table.Frame.Value("System-Freq", 0))
	assert.Equal(t, dfbuilders.LabelStart, table.Frame.Label(0))

	// listed in info.yml, but there is no raw file
	_, err = res.LoadStat(StatTurbostat, nil)
	assert.ErrorContains(t, err, "not found")

	_, err = res.LoadStat("sysinfo", nil)
	assert.ErrorContains(t, err, "unsupported")
	assert.False(t, IsSupportedStat("sysinfo"))
	assert.True(t, IsSupportedStat(StatIPMIOOB))

	require.NoError(t, res.SetTimeWindow(200, 300, false))
	table, err = res.LoadStat(StatInterrupts, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Frame.Len())
	assert.Error(t, res.SetTimeWindow(3, 1, true))
}

func TestSPECjbbDetection(t *testing.T) {
	dir := newResultDir(t, map[string]string{
		"wldata/controller.out": specjbbCtrlOut,
		"wldata/controller.log": specjbbCtrlLog,
	})
	res, err := Open(dir, "")
	require.NoError(t, err)
	assert.Equal(t, WLTypeSPECjbb2015, res.WLType)
	require.NotNil(t, res.SPECjbb)
	assert.Equal(t, 300, res.SPECjbb.MaxJOPS)
	assert.Equal(t, 150, res.SPECjbb.CritJOPS)

	require.NoError(t, res.LimitToSPECjbbRTCurve())
	require.NotNil(t, res.window)
	assert.Equal(t, float64(time.Date(2024, time.January, 15, 10, 10, 0, 0, time.UTC).Unix()), res.window.Begin)
	assert.False(t, res.window.Relative)

	// only one of the two files
	dir = newResultDir(t, map[string]string{"wldata/controller.out": specjbbCtrlOut})
	res, err = Open(dir, "")
	require.NoError(t, err)
	assert.Equal(t, WLTypeGeneric, res.WLType)
	assert.Equal(t, filepath.Join(dir, WLDataDir), res.WLDataDir)
	require.NoError(t, res.LimitToSPECjbbRTCurve())
	assert.Nil(t, res.window)

	// not SPECjbb2015 data
	dir = newResultDir(t, map[string]string{
		"wldata/controller.out": "hello\n",
		"wldata/controller.log": "world\n",
	})
	res, err = Open(dir, "")
	require.NoError(t, err)
	assert.Equal(t, WLTypeGeneric, res.WLType)
}

func TestLoadLabels(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []dfbuilders.Label
		wantErr string
	}{
		{
			name: "good",
			text: "# comment\n{\"name\": \"start\", \"ts\": 1.5, \"metrics\": {\"A\": 1, \"B\": 2.5}}\n\n{\"name\": \"skip\", \"ts\": 3}\n",
			want: []dfbuilders.Label{
				{Name: dfbuilders.LabelStart, TS: 1.5, Metrics: map[string]float64{"A": 1, "B": 2.5}},
				{Name: dfbuilders.LabelSkip, TS: 3},
			},
		},
		{name: "empty", text: "# nothing\n", wantErr: "does not contain any labels"},
		{name: "not JSON", text: "{name: start}\n", wantErr: "failed to parse JSON"},
		{name: "not an object", text: "[1, 2]\n", wantErr: "failed to parse JSON"},
		{name: "bad key", text: `{"name": "start", "ts": 1, "color": "red"}`, wantErr: "'color' is not allowed"},
		{name: "no name", text: `{"ts": 1}`, wantErr: "'name' key"},
		{name: "no ts", text: `{"name": "start"}`, wantErr: "'ts' key"},
		{name: "unsupported name", text: `{"name": "stop", "ts": 1}`, wantErr: "unsupported label name"},
		{name: "ts not a number", text: `{"name": "start", "ts": "now"}`, wantErr: "not an integer or a float"},
		{name: "metric not a number", text: `{"name": "start", "ts": 1, "metrics": {"A": "x"}}`, wantErr: "numeric values"},
		{name: "unsorted", text: "{\"name\": \"start\", \"ts\": 5}\n{\"name\": \"skip\", \"ts\": 4}\n", wantErr: "smaller than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "labels.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.text), 0644))
			labels, err := LoadLabels(path)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, labels)
		})
	}

	_, err := LoadLabels(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadLabelsFormatError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("{\"name\": \"start\", \"ts\": 1}\n{\"ts\": 2}\n"), 0644))
	_, err := LoadLabels(path)
	require.Error(t, err)
	assert.True(t, parsers.IsBadFormat(err))
	assert.Contains(t, err.Error(), path+":2:")
}

func TestDedupReportIDs(t *testing.T) {
	var results []*RawResult
	for _, id := range []string{"a", "b", "a", "a", "a-01"} {
		results = append(results, &RawResult{ReportID: id})
	}
	require.NoError(t, DedupReportIDs(results))
	var ids []string
	for _, res := range results {
		ids = append(ids, res.ReportID)
	}
	assert.Equal(t, []string{"a", "b", "a-01", "a-02", "a-01-01"}, ids)

	results = nil
	for range maxDupReportIDs + 1 {
		results = append(results, &RawResult{ReportID: "x"})
	}
	assert.ErrorContains(t, DedupReportIDs(results), "too many duplicate report IDs")
}

func TestWriteInfo(t *testing.T) {
	info := &Info{
		FormatVersion: FormatVersion,
		ToolName:      "statscollect",
		ToolVer:       "0.1.0",
		ReportID:      "local",
		CPUs:          []int{0, 1},
		Host:          &HostInfo{Hostname: "sut", CPUs: 2},
		STInfo: map[string]*StatInfo{
			StatInterrupts: {Interval: 0.5, InBand: true, Paths: StatPaths{Stats: "interrupts.raw.txt"}},
		},
	}
	path := filepath.Join(t.TempDir(), InfoFileName)
	require.NoError(t, WriteInfo(path, info))
	got, err := ReadInfo(path)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	assert.Error(t, WriteInfo(path, &Info{ToolName: "x"}))
}
