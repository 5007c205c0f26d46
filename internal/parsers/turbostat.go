package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	// TimeOfDayMetric is the turbostat column carrying the absolute time-stamp of a row.
	TimeOfDayMetric = "Time_Of_Day_Seconds"
	// TimeElapsedMetric is the derived time since the first snapshot.
	TimeElapsedMetric = "TimeElapsed"

	maxConsecutiveInvalidTables = 4
	pkgWattTDPLimit             = 2
	ramWattTDPLimit             = 10
)

var (
	turbostatTableStartRegex = regexp.MustCompile(`Avg_MHz\s+Busy%\s+Bzy_MHz`)
	reqCStateRegex           = regexp.MustCompile(`^((POLL)|(C\d+[ESP]*)|(C\d+ACPI))$`)

	tsVersionRegex    = regexp.MustCompile(`^turbostat version ([^\s]+) .*`)
	tsMaxEfcFreqRegex = regexp.MustCompile(`^\d+ \* [.\d]+ = ([.\d]+) MHz max efficiency frequency`)
	tsBaseFreqRegex   = regexp.MustCompile(`^\d+ \* [.\d]+ = ([.\d]+) MHz base frequency`)
	tsMaxTurboRegex   = regexp.MustCompile(`^\d+ \* [.\d]+ = ([.\d]+) MHz max turbo (\d+) active cores`)
	tsTDPRegex        = regexp.MustCompile(`^cpu\d+: MSR_PKG_POWER_INFO: .+ \(([.\d]+) W TDP, .+\)`)
)

// turbostat columns describing where a row belongs rather than what was measured
var topologyKeys = []string{"Package", "Node", "Die", "Core", "CPU"}

// freqMetrics need a busy-cycles weighted average at package level, which turbostat output
// does not allow to compute, so they are not reported in package totals.
var freqMetrics = []string{"Avg_MHz", "Bzy_MHz"}

// Metrics maps a metric name to its value.
type Metrics map[string]float64

// AggregationMethod selects how per-CPU values of a metric are combined into totals.
type AggregationMethod int

const (
	AggAverage AggregationMethod = iota
	AggSum
	AggMax
	AggMin
)

func (m AggregationMethod) String() string {
	switch m {
	case AggSum:
		return "sum"
	case AggMax:
		return "max"
	case AggMin:
		return "min"
	default:
		return "average"
	}
}

// Aggregate combines values. It returns 0 for an empty slice.
func (m AggregationMethod) Aggregate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch m {
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggMax:
		return slices.Max(values)
	case AggMin:
		return slices.Min(values)
	default:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}
}

// IsReqCState reports whether metric is a requestable C-state request count column.
func IsReqCState(metric string) bool {
	return reqCStateRegex.MatchString(metric)
}

// AggregationMethodFor returns the method used to build totals of a turbostat metric.
func AggregationMethodFor(metric string) AggregationMethod {
	switch {
	case metric == "IRQ", metric == "SMI", IsReqCState(metric):
		return AggSum
	case strings.HasSuffix(metric, "Watt"), strings.HasSuffix(metric, "_rate"):
		return AggSum
	case strings.HasSuffix(metric, "Tmp"):
		return AggMax
	case metric == TimeOfDayMetric, metric == TimeElapsedMetric:
		return AggMin
	}
	return AggAverage
}

// TurbostatNontable holds the information turbostat prints before its first table.
type TurbostatNontable struct {
	Version    string
	BaseFreq   float64
	MaxEfcFreq float64
	MaxTurbo   map[int]float64 // active cores -> MHz
	TDP        float64         // package TDP in Watts, 0 if unknown
	Flags      []string
}

// TurbostatCore is one core: its CPUs and the totals across them.
type TurbostatCore struct {
	CPUs   map[int]Metrics
	Totals Metrics
}

// TurbostatPackage is one package: its cores and the totals across them.
type TurbostatPackage struct {
	FirstCPU int
	Cores    map[int]*TurbostatCore
	Totals   Metrics
}

// TurbostatSnapshot is one parsed turbostat table.
type TurbostatSnapshot struct {
	Timestamp float64
	Nontable  *TurbostatNontable
	// Totals is the system-wide totals row printed by turbostat.
	Totals    Metrics
	Packages  map[int]*TurbostatPackage
	CPUs      map[int]Metrics
	CPUCount  int
	CoreCount int
	PkgCount  int

	cpu2pkg  map[int]int
	cpu2core map[int]int
}

// CPUMetrics returns the metrics describing a CPU: the totals of its package, overridden by
// the totals of its core, overridden by the CPU's own values.
func (s *TurbostatSnapshot) CPUMetrics(cpu int) (Metrics, bool) {
	cpuMetrics, ok := s.CPUs[cpu]
	if !ok {
		return nil, false
	}
	pkg := s.Packages[s.cpu2pkg[cpu]]
	merged := maps.Clone(pkg.Totals)
	maps.Copy(merged, pkg.Cores[s.cpu2core[cpu]].Totals)
	maps.Copy(merged, cpuMetrics)
	return merged, true
}

// SortedCPUs returns the CPU numbers in the snapshot in ascending order.
func (s *TurbostatSnapshot) SortedCPUs() []int {
	return slices.Sorted(maps.Keys(s.CPUs))
}

type colKind uint8

const (
	kindUnknown colKind = iota
	kindInt
	kindFloat
	kindString
)

type turbostatRow struct {
	cpu, core, pkg int
	hasCPU         bool
	metrics        Metrics
	// metrics that carried a placeholder instead of a value
	skipped mapset.Set[string]
}

// TurbostatParser parses turbostat output, one table per snapshot.
type TurbostatParser struct {
	reader      *lineReader
	derivatives bool
	nontable    TurbostatNontable

	heading2kind map[string]colKind
	heading      []string
	hasCPUColumn bool
	inTable      bool
	totals       *turbostatRow
	rows         []*turbostatRow

	prevTotals Metrics
	prevCPUs   map[int]Metrics
	prevCount  int
	firstTS    float64
	haveFirst  bool

	accepted           int
	rejected           int
	consecutiveInvalid int
	done               bool
}

// NewTurbostatParser creates a parser. With derivatives set, C-state request rate and
// per-request time metrics and the elapsed time are added to every row.
func NewTurbostatParser(in Input, derivatives bool) (*TurbostatParser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &TurbostatParser{
		reader:       newLineReader(in),
		derivatives:  derivatives,
		nontable:     TurbostatNontable{MaxTurbo: map[int]float64{}},
		heading2kind: map[string]colKind{},
	}, nil
}

// Next returns the next plausible snapshot, or io.EOF when there are no more.
func (p *TurbostatParser) Next() (*TurbostatSnapshot, error) {
	if p.done {
		return nil, io.EOF
	}
	for {
		snap, err := p.nextTable()
		if err != nil {
			p.done = true
			_ = p.reader.close()
			return nil, err
		}
		if p.isPlausible(snap) {
			p.accepted++
			p.consecutiveInvalid = 0
			p.commit(snap)
			return snap, nil
		}
		p.rejected++
		p.consecutiveInvalid++
		if p.consecutiveInvalid > maxConsecutiveInvalidTables {
			p.done = true
			_ = p.reader.close()
			return nil, p.reader.badFormat("more than %d consecutive turbostat tables contain implausible power values",
				maxConsecutiveInvalidTables)
		}
	}
}

// Close releases the input. It is only needed when Next was not called until io.EOF.
func (p *TurbostatParser) Close() error {
	p.done = true
	return p.reader.close()
}

// Nontable returns the metadata found so far.
func (p *TurbostatParser) Nontable() *TurbostatNontable {
	return &p.nontable
}

func (p *TurbostatParser) endOfStream() (*TurbostatSnapshot, error) {
	total := p.accepted + p.rejected
	if total > 0 && p.rejected*2 > total {
		return nil, &FormatError{Path: p.reader.name, Offset: -1,
			Msg: fmt.Sprintf("%d%% of the turbostat tables contain implausible power values", p.rejected*100/total)}
	}
	return nil, io.EOF
}

// nextDataLine returns the next line that is not empty and not a turbostat diagnostic.
func (p *TurbostatParser) nextDataLine() (string, bool, error) {
	for {
		line, ok, err := p.reader.next()
		if err != nil || !ok {
			return "", ok, err
		}
		line = strings.TrimSpace(line)
		// e.g., "turbostat: cpu65 jitter 2574 5881"
		if line == "" || strings.HasPrefix(line, "turbostat: ") {
			continue
		}
		return line, true, nil
	}
}

func (p *TurbostatParser) nextTable() (*TurbostatSnapshot, error) {
	for {
		line, ok, err := p.nextDataLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			return p.finishLastTable()
		}
		if !p.inTable && p.heading == nil && !turbostatTableStartRegex.MatchString(line) {
			p.addNontable(line)
			continue
		}
		fields := strings.Fields(line)
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			if !p.inTable {
				return nil, p.reader.badFormat("turbostat data line without a table heading")
			}
			row, err := p.parseRow(fields)
			if err != nil {
				return nil, err
			}
			if !row.hasCPU {
				return nil, p.reader.badFormat("'CPU' value was not found in turbostat line '%s'", line)
			}
			p.rows = append(p.rows, row)
			continue
		}
		if p.inTable {
			if !p.tableComplete() {
				return nil, p.reader.badFormat("incomplete turbostat table: heading line found, but no data lines")
			}
			p.reader.unread(line)
			return p.finishTable()
		}
		if err := p.startTable(fields); err != nil {
			return nil, err
		}
		if !p.inTable {
			return p.endOfStream()
		}
	}
}

func (p *TurbostatParser) tableComplete() bool {
	if !p.hasCPUColumn {
		return p.totals != nil
	}
	return len(p.rows) > 0
}

func (p *TurbostatParser) finishLastTable() (*TurbostatSnapshot, error) {
	if !p.inTable {
		return p.endOfStream()
	}
	if !p.tableComplete() {
		slog.Warn("incomplete turbostat table: no data lines after the heading", slog.String("path", p.reader.name))
		p.resetTable()
		return p.endOfStream()
	}
	if p.prevCount > 0 && len(p.rows) < p.prevCount {
		slog.Warn("dropping truncated last turbostat table", slog.String("path", p.reader.name),
			slog.Int("cpus", len(p.rows)), slog.Int("expected", p.prevCount))
		p.resetTable()
		return p.endOfStream()
	}
	return p.finishTable()
}

func (p *TurbostatParser) startTable(heading []string) error {
	p.heading = heading
	p.hasCPUColumn = slices.Contains(heading, "CPU")
	line, ok, err := p.nextDataLine()
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("incomplete turbostat table: no totals line after the heading line", slog.String("path", p.reader.name))
		return nil
	}
	row, err := p.parseRow(strings.Fields(line))
	if err != nil {
		return err
	}
	p.inTable = true
	if row.hasCPU {
		// single-CPU systems have no totals line, the CPU row doubles as totals
		p.totals = &turbostatRow{metrics: maps.Clone(row.metrics), skipped: row.skipped.Clone()}
		p.rows = append(p.rows, row)
		return nil
	}
	p.totals = row
	return nil
}

func (p *TurbostatParser) resetTable() {
	p.inTable = false
	p.totals = nil
	p.rows = nil
}

func (p *TurbostatParser) finishTable() (*TurbostatSnapshot, error) {
	totals, rows := p.totals, p.rows
	p.resetTable()
	return p.buildSnapshot(totals, rows), nil
}

func (p *TurbostatParser) parseRow(fields []string) (*turbostatRow, error) {
	if len(fields) > len(p.heading) {
		return nil, p.reader.badFormat("turbostat line has %d values, but the heading has only %d columns",
			len(fields), len(p.heading))
	}
	row := &turbostatRow{metrics: Metrics{}, skipped: mapset.NewThreadUnsafeSet[string]()}
	for i, token := range fields {
		key := p.heading[i]
		// "(neg)" is printed when a negative value was read where a positive one is expected
		if token == "-" || token == "(neg)" {
			row.skipped.Add(key)
			continue
		}
		val, numeric, err := p.parseValue(key, token)
		if err != nil {
			return nil, err
		}
		if !numeric {
			continue
		}
		switch key {
		case "CPU":
			row.cpu, row.hasCPU = int(val), true
		case "Core":
			row.core = int(val)
		case "Package":
			row.pkg = int(val)
		case "Node", "Die":
		default:
			row.metrics[key] = val
		}
	}
	return row, nil
}

func (p *TurbostatParser) parseValue(key, token string) (float64, bool, error) {
	kind := p.heading2kind[key]
	if kind == kindUnknown {
		kind = inferKind(token)
		if slices.Contains(topologyKeys, key) && kind != kindInt {
			return 0, false, p.reader.badFormat("bad '%s' value '%s'", key, token)
		}
		p.heading2kind[key] = kind
	}
	switch kind {
	case kindInt:
		if v, err := strconv.ParseInt(token, 10, 64); err == nil {
			return float64(v), true, nil
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil || slices.Contains(topologyKeys, key) {
			return 0, false, p.reader.badFormat("bad '%s' value '%s', expected an integer", key, token)
		}
		p.heading2kind[key] = kindFloat
		return v, true, nil
	case kindFloat:
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return 0, false, p.reader.badFormat("bad '%s' value '%s', expected a number", key, token)
		}
		return v, true, nil
	}
	return 0, false, nil
}

func inferKind(token string) colKind {
	if _, err := strconv.ParseInt(token, 10, 64); err == nil {
		return kindInt
	}
	if _, err := strconv.ParseFloat(token, 64); err == nil {
		return kindFloat
	}
	return kindString
}

func (p *TurbostatParser) addNontable(line string) {
	if m := tsVersionRegex.FindStringSubmatch(line); m != nil {
		p.nontable.Version = m[1]
		return
	}
	if m := tsMaxEfcFreqRegex.FindStringSubmatch(line); m != nil {
		p.nontable.MaxEfcFreq, _ = strconv.ParseFloat(m[1], 64)
		return
	}
	if m := tsBaseFreqRegex.FindStringSubmatch(line); m != nil {
		p.nontable.BaseFreq, _ = strconv.ParseFloat(m[1], 64)
		return
	}
	if m := tsMaxTurboRegex.FindStringSubmatch(line); m != nil {
		freq, _ := strconv.ParseFloat(m[1], 64)
		cores, _ := strconv.Atoi(m[2])
		p.nontable.MaxTurbo[cores] = freq
		return
	}
	if m := tsTDPRegex.FindStringSubmatch(line); m != nil {
		p.nontable.TDP, _ = strconv.ParseFloat(m[1], 64)
		return
	}
	if flags, ok := strings.CutPrefix(line, "CPUID(6):"); ok {
		p.nontable.Flags = nil
		for flag := range strings.SplitSeq(flags, ",") {
			if flag = strings.TrimSpace(flag); flag != "" {
				p.nontable.Flags = append(p.nontable.Flags, flag)
			}
		}
	}
}

func (p *TurbostatParser) buildSnapshot(totals *turbostatRow, rows []*turbostatRow) *TurbostatSnapshot {
	snap := &TurbostatSnapshot{
		Nontable: &p.nontable,
		Totals:   totals.metrics,
		Packages: map[int]*TurbostatPackage{},
		CPUs:     map[int]Metrics{},
		cpu2pkg:  map[int]int{},
		cpu2core: map[int]int{},
	}
	snap.Timestamp = snapshotTimestamp(totals.metrics, rows)
	if p.derivatives {
		p.addDerivatives(snap.Timestamp, totals.metrics, p.prevTotals)
		for _, row := range rows {
			p.addDerivatives(snap.Timestamp, row.metrics, p.prevCPUs[row.cpu])
		}
	}

	skipped := map[int]mapset.Set[string]{}
	for _, row := range rows {
		pkg, ok := snap.Packages[row.pkg]
		if !ok {
			pkg = &TurbostatPackage{FirstCPU: row.cpu, Cores: map[int]*TurbostatCore{}}
			snap.Packages[row.pkg] = pkg
			snap.PkgCount++
		}
		core, ok := pkg.Cores[row.core]
		if !ok {
			core = &TurbostatCore{CPUs: map[int]Metrics{}}
			pkg.Cores[row.core] = core
			snap.CoreCount++
		}
		core.CPUs[row.cpu] = row.metrics
		snap.CPUs[row.cpu] = row.metrics
		snap.cpu2pkg[row.cpu] = row.pkg
		snap.cpu2core[row.cpu] = row.core
		skipped[row.cpu] = row.skipped
		snap.CPUCount++
	}

	pkgLevel := packageLevelMetrics(rows)
	for _, pkgID := range slices.Sorted(maps.Keys(snap.Packages)) {
		pkg := snap.Packages[pkgID]
		var coreTotals []Metrics
		var coreSkipped []mapset.Set[string]
		var pkgCPUs []Metrics
		var pkgSkipped []mapset.Set[string]
		for _, coreID := range slices.Sorted(maps.Keys(pkg.Cores)) {
			core := pkg.Cores[coreID]
			var cpus []Metrics
			var cpuSkipped []mapset.Set[string]
			for _, cpu := range slices.Sorted(maps.Keys(core.CPUs)) {
				cpus = append(cpus, core.CPUs[cpu])
				cpuSkipped = append(cpuSkipped, skipped[cpu])
			}
			core.Totals = aggregateMetrics(cpus)
			coreTotals = append(coreTotals, core.Totals)
			union := mapset.NewThreadUnsafeSet[string]()
			for _, s := range cpuSkipped {
				union = union.Union(s)
			}
			coreSkipped = append(coreSkipped, union)
			pkgCPUs = append(pkgCPUs, cpus...)
			pkgSkipped = append(pkgSkipped, cpuSkipped...)
			// turbostat prints core level values on the first CPU line of a core
			dropUncommon(cpus, cpuSkipped)
		}
		pkg.Totals = aggregateMetrics(coreTotals)
		for _, metric := range freqMetrics {
			delete(pkg.Totals, metric)
		}
		// and package level values on the first CPU line of a package
		dropUncommon(coreTotals, coreSkipped)
		dropUncommon(pkgCPUs, pkgSkipped)
		// a single core package has nothing to compare its first CPU line with
		for _, metric := range pkgLevel.ToSlice() {
			for _, m := range slices.Concat(coreTotals, pkgCPUs) {
				delete(m, metric)
			}
		}
	}
	return snap
}

// packageLevelMetrics returns the metrics turbostat prints only on the first CPU line of a
// package. They are found in the first package with more than one core, by comparing its first
// CPU line with the first CPU line of its second core.
func packageLevelMetrics(rows []*turbostatRow) mapset.Set[string] {
	metrics := mapset.NewThreadUnsafeSet[string]()
	var first *turbostatRow
	for _, row := range rows {
		if first == nil || row.pkg != first.pkg {
			first = row
			continue
		}
		if row.core == first.core {
			continue
		}
		for metric := range first.metrics {
			if _, ok := row.metrics[metric]; !ok && !row.skipped.Contains(metric) {
				metrics.Add(metric)
			}
		}
		break
	}
	return metrics
}

func snapshotTimestamp(totals Metrics, rows []*turbostatRow) float64 {
	if ts, ok := totals[TimeOfDayMetric]; ok {
		return ts
	}
	var values []float64
	for _, row := range rows {
		if ts, ok := row.metrics[TimeOfDayMetric]; ok {
			values = append(values, ts)
		}
	}
	return AggMin.Aggregate(values)
}

// aggregateMetrics builds totals for every metric found in any of the given metric maps.
func aggregateMetrics(all []Metrics) Metrics {
	values := map[string][]float64{}
	for _, m := range all {
		for metric, val := range m {
			values[metric] = append(values[metric], val)
		}
	}
	totals := make(Metrics, len(values))
	for metric, vals := range values {
		totals[metric] = AggregationMethodFor(metric).Aggregate(vals)
	}
	return totals
}

// dropUncommon removes metrics that are not present in every map. A metric skipped because of
// a placeholder value still counts as present.
func dropUncommon(all []Metrics, skipped []mapset.Set[string]) {
	if len(all) < 2 {
		return
	}
	for i, m := range all {
		for metric := range m {
			for j, other := range all {
				if j == i {
					continue
				}
				if _, ok := other[metric]; ok {
					continue
				}
				if skipped[j] != nil && skipped[j].Contains(metric) {
					continue
				}
				delete(m, metric)
				break
			}
		}
	}
}

// addDerivatives adds the elapsed time and the C-state request rate and per-request time
// metrics to a row, using the same row of the previous accepted snapshot.
func (p *TurbostatParser) addDerivatives(snapTS float64, cur, prev Metrics) {
	if ts, ok := cur[TimeOfDayMetric]; ok {
		first := snapTS
		if p.haveFirst {
			first = p.firstTS
		}
		cur[TimeElapsedMetric] = ts - first
	}
	var interval float64
	ts, ok := cur[TimeOfDayMetric]
	prevTS, prevOK := prev[TimeOfDayMetric]
	haveInterval := ok && prevOK
	if haveInterval {
		interval = ts - prevTS
	}
	var cstates []string
	for metric := range cur {
		if IsReqCState(metric) {
			cstates = append(cstates, metric)
		}
	}
	for _, cstate := range cstates {
		count := cur[cstate]
		rate := 0.0
		if haveInterval && interval > 0 {
			rate = count / interval
		}
		cur[cstate+"_rate"] = rate
		resd, ok := cur[cstate+"%"]
		if !ok {
			continue
		}
		reqTime := 0.0
		if haveInterval && count != 0 {
			// microseconds spent in the C-state per request
			reqTime = interval * resd / 100 / count * 1e6
		}
		cur[cstate+"_time"] = reqTime
	}
}

func (p *TurbostatParser) isPlausible(snap *TurbostatSnapshot) bool {
	tdp := snap.Nontable.TDP
	if tdp <= 0 {
		return true
	}
	for pkgID, pkg := range snap.Packages {
		if watt, ok := pkg.Totals["PkgWatt"]; ok && watt > pkgWattTDPLimit*tdp {
			slog.Warn("dropping turbostat table with implausible package power", slog.String("path", p.reader.name),
				slog.Int("package", pkgID), slog.Float64("PkgWatt", watt), slog.Float64("TDP", tdp))
			return false
		}
		if watt, ok := pkg.Totals["RAMWatt"]; ok && watt > ramWattTDPLimit*tdp {
			slog.Warn("dropping turbostat table with implausible RAM power", slog.String("path", p.reader.name),
				slog.Int("package", pkgID), slog.Float64("RAMWatt", watt), slog.Float64("TDP", tdp))
			return false
		}
	}
	return true
}

func (p *TurbostatParser) commit(snap *TurbostatSnapshot) {
	if !p.haveFirst {
		p.firstTS, p.haveFirst = snap.Timestamp, true
	}
	p.prevTotals = snap.Totals
	p.prevCPUs = map[int]Metrics{}
	for cpu, m := range snap.CPUs {
		p.prevCPUs[cpu] = m
	}
	p.prevCount = snap.CPUCount
}
