package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	specjbbLogProbeLines = 1024
	specjbbLogTimeLayout = "Mon Jan 02 15:04:05 2006"
)

// <Mon Jan 15 10:20:30 UTC 2024>
const specjbbLogTS = `<(([^\W\d_]{3} [^\W\d_]{3} \d{2} \d{2}:\d{2}:\d{2}) ([^\W\d_]{3,4}) (\d{4}))>`

var (
	specjbbLogStartRegex = regexp.MustCompile(`^` + specjbbLogTS + ` org\.spec\.jbb\.ic: Init IC$`)
	specjbbLogHBIRRegex  = regexp.MustCompile(`^` + specjbbLogTS +
		` org\.spec\.jbb\.controller: high-bound for max-jOPS is measured to be (\d+)$`)
	specjbbLogRTStartRegex = regexp.MustCompile(`^` + specjbbLogTS +
		` org\.spec\.jbb\.controller: RT curve for IR = (\d+) \( ?(\d+)%\*hbIR\)$`)
	specjbbLogRTEndRegex = regexp.MustCompile(`^` + specjbbLogTS +
		` org\.spec\.jbb\.controller: RT_CURVE: IR = (\d+) finished, (steady|settle) status = \[(.+)\].*$`)

	specjbbOutMarkerRegex  = regexp.MustCompile(`^SPECjbb2015 Java Business Benchmark$`)
	specjbbOutHBIRRegex    = regexp.MustCompile(`^\s*\d+s: high-bound for max-jOPS is measured to be (\d+)$`)
	specjbbOutResultRegex  = regexp.MustCompile(`^RUN RESULT: .* hbIR \(settled\) = (\d+), max-jOPS = (\d+), critical-jOPS = (\d+)$`)
	specjbbOutRTStartRegex = regexp.MustCompile(`^\s*(\d+)s: Building throughput-responsetime curve$`)
	specjbbOutRTLevelRegex = regexp.MustCompile(`^\s*(\d+)s: \(\s*(\d+)%\)\s+IR =\s+\d+ [.|?]+ ` +
		`\(rIR:aIR:PR = (\d+):(\d+):(\d+)\) \(tPR = (\d+)\) \[OK\]\s*$`)
)

// offsets of time zone abbreviations printed by the SPECjbb2015 controller, in seconds
var specjbbTimezones = map[string]int64{
	"UTC": 0, "GMT": 0, "WET": 0, "Z": 0,
	"WEST": 3600, "CET": 3600, "BST": 3600, "WAT": 3600,
	"CEST": 7200, "EET": 7200, "SAST": 7200, "IST": 19800,
	"EEST": 10800, "MSK": 10800, "EAT": 10800,
	"GST": 14400, "PKT": 18000, "ICT": 25200, "WIB": 25200,
	"CST": -21600, "CDT": -18000, "EST": -18000, "EDT": -14400,
	"MST": -25200, "MDT": -21600, "PST": -28800, "PDT": -25200,
	"AKST": -32400, "AKDT": -28800, "HST": -36000,
	"SGT": 28800, "HKT": 28800, "AWST": 28800, "PHT": 28800,
	"JST": 32400, "KST": 32400, "ACST": 34200, "AEST": 36000,
	"ACDT": 37800, "AEDT": 39600, "NZST": 43200, "NZDT": 46800,
	"BRT": -10800, "ART": -10800, "AST": -14400, "NST": -12600,
}

// SPECjbbLevel is one load level of the SPECjbb2015 response-throughput curve.
type SPECjbbLevel struct {
	Percent int
	// TS is an epoch time-stamp in the controller log and seconds since the start in the
	// controller output.
	TS     int64
	IR     int
	RIR    int
	AIR    int
	PR     int
	TPR    int
	Status string
}

// SPECjbbInfo is the summary extracted from a SPECjbb2015 controller log or output.
type SPECjbbInfo struct {
	HBIR        int
	HBIRSettled int
	MaxJOPS     int
	CritJOPS    int
	Levels      map[int]*SPECjbbLevel
	FirstLevel  int
	LastLevel   int
}

func newSPECjbbInfo() *SPECjbbInfo {
	return &SPECjbbInfo{Levels: map[int]*SPECjbbLevel{}, FirstLevel: -1, LastLevel: -1}
}

// SortedLevels returns the load level percentages in ascending order.
func (i *SPECjbbInfo) SortedLevels() []int {
	return slices.Sorted(maps.Keys(i.Levels))
}

// SPECjbbCtrlLogParser parses the SPECjbb2015 controller log.
type SPECjbbCtrlLogParser struct {
	reader   *lineReader
	probed   bool
	probeErr error
	done     bool
}

// NewSPECjbbCtrlLogParser creates a controller log parser.
func NewSPECjbbCtrlLogParser(in Input) (*SPECjbbCtrlLogParser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &SPECjbbCtrlLogParser{reader: newLineReader(in)}, nil
}

// Probe checks that the controller log start line is present within the first lines of the
// input. The result is cached.
func (p *SPECjbbCtrlLogParser) Probe() error {
	if p.probed {
		return p.probeErr
	}
	p.probed = true
	for range specjbbLogProbeLines {
		line, ok, err := p.reader.next()
		if err != nil {
			p.probeErr = err
			return err
		}
		if !ok {
			break
		}
		if specjbbLogStartRegex.MatchString(line) {
			return nil
		}
	}
	p.probeErr = p.reader.badFormat("not a SPECjbb2015 controller log")
	return p.probeErr
}

// Next returns the summary on the first call and io.EOF afterwards.
func (p *SPECjbbCtrlLogParser) Next() (*SPECjbbInfo, error) {
	if p.done {
		return nil, io.EOF
	}
	p.done = true
	defer func() { _ = p.reader.close() }()
	if err := p.Probe(); err != nil {
		return nil, err
	}
	info := newSPECjbbInfo()
	hbirFound := false
	var cur *SPECjbbLevel
	for {
		line, ok, err := p.reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !hbirFound {
			if m := specjbbLogHBIRRegex.FindStringSubmatch(line); m != nil {
				info.HBIR, _ = strconv.Atoi(m[5])
				hbirFound = true
			}
			continue
		}
		if m := specjbbLogRTStartRegex.FindStringSubmatch(line); m != nil {
			ts, err := p.parseTS(m)
			if err != nil {
				return nil, err
			}
			pcnt, _ := strconv.Atoi(m[6])
			cur = &SPECjbbLevel{Percent: pcnt, TS: ts}
			info.Levels[pcnt] = cur
			if info.FirstLevel < 0 {
				info.FirstLevel = pcnt
			}
			continue
		}
		if m := specjbbLogRTEndRegex.FindStringSubmatch(line); m != nil && cur != nil {
			if m[7] != "OK" {
				// the benchmark failed at this level, the curve ends at the previous one
				delete(info.Levels, cur.Percent)
				break
			}
			cur.Status = m[7]
			cur.IR, _ = strconv.Atoi(m[5])
			info.MaxJOPS = cur.IR
			info.LastLevel = cur.Percent
		}
	}
	if !hbirFound {
		return nil, p.reader.badFormat("HBIR value was not found in SPECjbb2015 controller log")
	}
	return info, nil
}

// Close releases the input.
func (p *SPECjbbCtrlLogParser) Close() error {
	p.done = true
	return p.reader.close()
}

func (p *SPECjbbCtrlLogParser) parseTS(m []string) (int64, error) {
	t, err := time.ParseInLocation(specjbbLogTimeLayout, m[2]+" "+m[4], time.UTC)
	if err != nil {
		return 0, p.reader.badFormat("bad SPECjbb2015 time-stamp '%s'", m[1])
	}
	offset, ok := specjbbTimezones[m[3]]
	if !ok {
		return 0, p.reader.badFormat("unknown time zone '%s' in SPECjbb2015 time-stamp '%s'", m[3], m[1])
	}
	return t.Unix() - offset, nil
}

// SPECjbbCtrlOutParser parses the SPECjbb2015 controller standard output.
type SPECjbbCtrlOutParser struct {
	reader   *lineReader
	probed   bool
	probeErr error
	done     bool
}

// NewSPECjbbCtrlOutParser creates a controller output parser.
func NewSPECjbbCtrlOutParser(in Input) (*SPECjbbCtrlOutParser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &SPECjbbCtrlOutParser{reader: newLineReader(in)}, nil
}

// Probe looks for the benchmark banner. The result is cached.
func (p *SPECjbbCtrlOutParser) Probe() error {
	if p.probed {
		return p.probeErr
	}
	p.probed = true
	for {
		line, ok, err := p.reader.next()
		if err != nil {
			p.probeErr = err
			return err
		}
		if !ok {
			break
		}
		if specjbbOutMarkerRegex.MatchString(line) {
			return nil
		}
	}
	p.probeErr = p.reader.badFormat("not a SPECjbb2015 controller output")
	return p.probeErr
}

// Next returns the summary on the first call and io.EOF afterwards.
func (p *SPECjbbCtrlOutParser) Next() (*SPECjbbInfo, error) {
	if p.done {
		return nil, io.EOF
	}
	p.done = true
	defer func() { _ = p.reader.close() }()
	if err := p.Probe(); err != nil {
		return nil, err
	}
	info := newSPECjbbInfo()
	found := false
	rtStarted := false
	for {
		line, ok, err := p.reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if !rtStarted && specjbbOutRTStartRegex.MatchString(line) {
			rtStarted = true
			continue
		}
		if rtStarted {
			if m := specjbbOutRTLevelRegex.FindStringSubmatch(line); m != nil {
				level := &SPECjbbLevel{Status: "OK"}
				vals := make([]int, 6)
				for i := range vals {
					vals[i], _ = strconv.Atoi(m[i+1])
				}
				level.TS = int64(vals[0])
				level.Percent, level.RIR, level.AIR, level.PR, level.TPR = vals[1], vals[2], vals[3], vals[4], vals[5]
				info.Levels[level.Percent] = level
				if info.FirstLevel < 0 {
					info.FirstLevel = level.Percent
				}
				info.LastLevel = level.Percent
				found = true
				continue
			}
		}
		if m := specjbbOutHBIRRegex.FindStringSubmatch(line); m != nil {
			info.HBIR, _ = strconv.Atoi(m[1])
			found = true
			continue
		}
		if m := specjbbOutResultRegex.FindStringSubmatch(line); m != nil {
			info.HBIRSettled, _ = strconv.Atoi(m[1])
			info.MaxJOPS, _ = strconv.Atoi(m[2])
			info.CritJOPS, _ = strconv.Atoi(m[3])
			found = true
		}
	}
	if !found {
		return nil, p.reader.badFormat("no parsable information found in the SPECjbb2015 controller output")
	}
	return info, nil
}

// Close releases the input.
func (p *SPECjbbCtrlOutParser) Close() error {
	p.done = true
	return p.reader.close()
}

// SPECjbbSummary is the cross-checked result of a SPECjbb2015 run.
type SPECjbbSummary struct {
	HBIR         int
	MaxJOPS      int
	CritJOPS     int
	FirstLevel   int
	LastLevel    int
	FirstLevelTS int64
	LastLevelTS  int64
}

// CrossCheckSPECjbb verifies that the controller log and output describe the same run and
// combines them. Time-stamps come from the log, scores from the output.
func CrossCheckSPECjbb(log, out *SPECjbbInfo) (*SPECjbbSummary, error) {
	if log.HBIR != out.HBIR {
		return nil, errors.Errorf("SPECjbb2015 HBIR mismatch: controller log has %d, controller output has %d",
			log.HBIR, out.HBIR)
	}
	if log.MaxJOPS != out.MaxJOPS {
		return nil, errors.Errorf("SPECjbb2015 max-jOPS mismatch: controller log has %d, controller output has %d",
			log.MaxJOPS, out.MaxJOPS)
	}
	if log.FirstLevel != out.FirstLevel || log.LastLevel != out.LastLevel {
		return nil, errors.Errorf("SPECjbb2015 load levels mismatch: controller log has %d%%-%d%%, controller output has %d%%-%d%%",
			log.FirstLevel, log.LastLevel, out.FirstLevel, out.LastLevel)
	}
	if len(log.Levels) != len(out.Levels) {
		return nil, errors.Errorf("SPECjbb2015 load levels count mismatch: controller log has %d (%v), controller output has %d (%v)",
			len(log.Levels), log.SortedLevels(), len(out.Levels), out.SortedLevels())
	}
	first, ok := log.Levels[log.FirstLevel]
	if !ok {
		return nil, errors.New("SPECjbb2015 controller log has no complete load levels")
	}
	last := log.Levels[log.LastLevel]
	return &SPECjbbSummary{
		HBIR:         out.HBIR,
		MaxJOPS:      out.MaxJOPS,
		CritJOPS:     out.CritJOPS,
		FirstLevel:   out.FirstLevel,
		LastLevel:    out.LastLevel,
		FirstLevelTS: first.TS,
		LastLevelTS:  last.TS,
	}, nil
}
