package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

const (
	// InterruptsSentinel ends a line written by the collector when it is stopped.
	InterruptsSentinel = "interrupted, exiting"

	defaultTailBlockSize = 4096
	interruptsProbeLines = 2
)

var interruptsTimestampRegex = regexp.MustCompile(`^timestamp: (\d+\.\d+)$`)

// IRQInfo describes an interrupt line. Fields not printed by the kernel are empty.
type IRQInfo struct {
	// Num is the interrupt name as printed, without the colon, e.g. "0" or "NMI".
	Num      string
	ChipName string
	HWIRQ    string
	Action   string
}

// InterruptsSnapshot is one /proc/interrupts dump.
type InterruptsSnapshot struct {
	Timestamp float64
	// CPUs lists the CPU numbers in header order.
	CPUs []int
	// CPU2IRQs maps a CPU number to the per-IRQ counts.
	CPU2IRQs map[int]map[string]int64
	// IRQNames lists IRQ names in the order they appeared.
	IRQNames []string
	IRQInfo  map[string]IRQInfo
}

func newInterruptsSnapshot(ts float64) *InterruptsSnapshot {
	return &InterruptsSnapshot{
		Timestamp: ts,
		CPU2IRQs:  map[int]map[string]int64{},
		IRQInfo:   map[string]IRQInfo{},
	}
}

// LastIRQ returns the name of the last IRQ row of the snapshot.
func (s *InterruptsSnapshot) LastIRQ() string {
	if len(s.IRQNames) == 0 {
		return ""
	}
	return s.IRQNames[len(s.IRQNames)-1]
}

// IsNumericIRQ reports whether name is a canonicalized numeric IRQ name like "IRQ12".
func IsNumericIRQ(name string) bool {
	num, ok := strings.CutPrefix(name, "IRQ")
	if !ok || num == "" {
		return false
	}
	_, err := strconv.ParseUint(num, 10, 64)
	return err == nil
}

// InterruptsParser parses periodic /proc/interrupts dumps, each preceded by a
// "timestamp: <epoch>" line.
type InterruptsParser struct {
	in            Input
	scanner       *interruptsScanner
	probed        bool
	probeErr      error
	tailBlockSize int64
	done          bool
}

// NewInterruptsParser creates a parser.
func NewInterruptsParser(in Input) (*InterruptsParser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &InterruptsParser{
		in:            in,
		scanner:       &interruptsScanner{reader: newLineReader(in)},
		tailBlockSize: defaultTailBlockSize,
	}, nil
}

// Probe checks that the input looks like interrupts data: a time-stamp line followed by a CPU
// header line. The result is cached.
func (p *InterruptsParser) Probe() error {
	if p.probed {
		return p.probeErr
	}
	p.probed = true
	p.probeErr = p.scanner.probe()
	return p.probeErr
}

// Next returns the next snapshot, or io.EOF when there are no more.
func (p *InterruptsParser) Next() (*InterruptsSnapshot, error) {
	if p.done {
		return nil, io.EOF
	}
	if err := p.Probe(); err != nil {
		p.done = true
		_ = p.scanner.reader.close()
		return nil, err
	}
	snap, err := p.scanner.next()
	if err != nil {
		p.done = true
		_ = p.scanner.reader.close()
		return nil, err
	}
	return snap, nil
}

// Close releases the input. It is only needed when Next was not called until io.EOF.
func (p *InterruptsParser) Close() error {
	p.done = true
	return p.scanner.reader.close()
}

// FirstAndLast returns the first and the last complete snapshot of the input file without
// parsing everything in between. The last snapshot is found by scanning the file backwards
// from its end.
func (p *InterruptsParser) FirstAndLast() (*InterruptsSnapshot, *InterruptsSnapshot, error) {
	if p.in.Path == "" {
		return nil, nil, errors.Wrap(ErrConfig, "first and last snapshots can only be found in a file")
	}
	head := &interruptsScanner{reader: newLineReader(p.in)}
	defer func() { _ = head.reader.close() }()
	if err := head.probe(); err != nil {
		return nil, nil, err
	}
	first, err := head.next()
	if err != nil {
		if err == io.EOF {
			return nil, nil, &FormatError{Path: p.in.Path, Offset: -1, Msg: "no snapshots found"}
		}
		return nil, nil, err
	}

	file, err := os.Open(p.in.Path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open '%s'", p.in.Path)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to stat '%s'", p.in.Path)
	}

	last, pos, err := p.lastSnapshotBefore(file, info.Size())
	if err != nil {
		return nil, nil, err
	}
	if last.LastIRQ() != first.LastIRQ() && pos > 0 {
		// the last snapshot was cut short, use the one before it
		slog.Debug("last interrupts snapshot is incomplete, using the previous one",
			slog.String("path", p.in.Path), slog.Int64("offset", pos))
		prior, _, err := p.lastSnapshotBefore(file, pos)
		if err != nil {
			return nil, nil, err
		}
		last = prior
	}
	return first, last, nil
}

// lastSnapshotBefore parses the last snapshot starting before maxPos. Trailing fragments
// holding a time-stamp line but no interrupt rows are skipped.
func (p *InterruptsParser) lastSnapshotBefore(file *os.File, maxPos int64) (*InterruptsSnapshot, int64, error) {
	for {
		pos, err := locateLastSnapshot(file, maxPos, p.tailBlockSize)
		if err != nil {
			return nil, 0, p.tailError(err, maxPos)
		}
		tail := &interruptsScanner{reader: newSectionLineReader(p.in.Path, io.NewSectionReader(file, pos, maxPos-pos))}
		snap, err := tail.next()
		if err == nil {
			return snap, pos, nil
		}
		if !IsBadFormat(err) || pos == 0 {
			return nil, 0, err
		}
		maxPos = pos
	}
}

func (p *InterruptsParser) tailError(err error, maxPos int64) error {
	if err == errNoTimestamp {
		return &FormatError{Path: p.in.Path, Offset: maxPos, Msg: "no 'timestamp:' lines found before this offset"}
	}
	return errors.Wrapf(err, "failed to read '%s'", p.in.Path)
}

var errNoTimestamp = errors.New("no timestamp line found")

// locateLastSnapshot returns the offset of the last complete "timestamp:" line that ends at
// or before maxPos. The search window grows backwards from maxPos one block at a time.
func locateLastSnapshot(r io.ReaderAt, maxPos, blockSize int64) (int64, error) {
	if blockSize <= 0 {
		blockSize = defaultTailBlockSize
	}
	// a time-stamp line starting inside a block may end after it
	const maxTimestampLine = 64
	for end := maxPos; end > 0; end -= blockSize {
		start := max(end-blockSize, 0)
		readStart := max(start-1, 0)
		readEnd := min(end+maxTimestampLine, maxPos)
		buf := make([]byte, readEnd-readStart)
		n, err := r.ReadAt(buf, readStart)
		if err != nil && err != io.EOF {
			return 0, err
		}
		buf = buf[:n]
		found := int64(-1)
		for off := start; off < end; off++ {
			idx := off - readStart
			if idx >= int64(len(buf)) {
				break
			}
			if off > 0 && buf[idx-1] != '\n' {
				continue
			}
			line := buf[idx:]
			nl := bytes.IndexByte(line, '\n')
			if nl < 0 {
				if readStart+int64(len(buf)) < maxPos {
					continue
				}
			} else {
				line = line[:nl]
			}
			if interruptsTimestampRegex.Match(bytes.TrimSpace(line)) {
				found = off
			}
		}
		if found >= 0 {
			return found, nil
		}
	}
	return 0, errNoTimestamp
}

// interruptsScanner holds the parsing state of one pass over interrupts data.
type interruptsScanner struct {
	reader      *lineReader
	cur         *InterruptsSnapshot
	cpus        []int
	lastYielded string
	yielded     int
	finished    bool
	// pending holds a parse error of the current snapshot. It is returned once more data
	// follows; at the end of the stream the snapshot is treated as truncated instead.
	pending error
}

func (s *interruptsScanner) probe() error {
	var lines []string
	for len(lines) < interruptsProbeLines {
		line, ok, err := s.reader.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	for i := len(lines) - 1; i >= 0; i-- {
		s.reader.unread(lines[i])
	}
	if len(lines) < interruptsProbeLines {
		return &FormatError{Path: s.reader.name, Offset: -1, Msg: "too short interrupts data"}
	}
	if !interruptsTimestampRegex.MatchString(lines[0]) {
		return &FormatError{Path: s.reader.name, Line: 1, Offset: -1,
			Msg: "interrupts data does not start with a 'timestamp: <time>' line"}
	}
	if _, err := parseCPUHeader(lines[1]); err != nil {
		return &FormatError{Path: s.reader.name, Line: 2, Offset: -1, Msg: err.Error()}
	}
	return nil
}

func parseCPUHeader(line string) ([]int, error) {
	var cpus []int
	for token := range strings.FieldsSeq(line) {
		num, ok := strings.CutPrefix(token, "CPU")
		if !ok {
			return nil, errors.Errorf("bad CPU header token '%s'", token)
		}
		cpu, err := strconv.Atoi(num)
		if err != nil || cpu < 0 {
			return nil, errors.Errorf("bad CPU number in header token '%s'", token)
		}
		cpus = append(cpus, cpu)
	}
	if len(cpus) == 0 {
		return nil, errors.New("empty CPU header line")
	}
	return cpus, nil
}

func (s *interruptsScanner) next() (*InterruptsSnapshot, error) {
	if s.finished {
		return nil, io.EOF
	}
	for {
		line, ok, err := s.reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if s.pending != nil && !strings.HasSuffix(line, InterruptsSentinel) {
			return nil, s.pending
		}
		if m := interruptsTimestampRegex.FindStringSubmatch(line); m != nil {
			ts, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, s.reader.badFormat("bad time-stamp '%s'", m[1])
			}
			prev := s.cur
			s.cur = newInterruptsSnapshot(ts)
			s.cpus = nil
			if prev == nil {
				continue
			}
			if len(prev.IRQNames) == 0 {
				return nil, s.reader.badFormat("interrupts snapshot without interrupt lines")
			}
			s.yield(prev)
			return prev, nil
		}
		if strings.HasSuffix(line, InterruptsSentinel) {
			break
		}
		if s.cur == nil {
			return nil, s.reader.badFormat("interrupts data does not start with a 'timestamp: <time>' line")
		}
		if strings.HasPrefix(line, "CPU") {
			cpus, err := parseCPUHeader(line)
			if err != nil {
				s.pending = s.reader.badFormat("%s", err.Error())
				continue
			}
			s.cpus = cpus
			s.cur.CPUs = cpus
			continue
		}
		s.pending = s.parseIRQLine(line)
	}
	return s.finish()
}

func (s *interruptsScanner) yield(snap *InterruptsSnapshot) {
	s.yielded++
	s.lastYielded = snap.LastIRQ()
}

func (s *interruptsScanner) finish() (*InterruptsSnapshot, error) {
	s.finished = true
	last := s.cur
	s.cur = nil
	if s.pending != nil {
		if s.yielded == 0 {
			return nil, s.pending
		}
		slog.Debug("dropping truncated last interrupts snapshot", slog.String("path", s.reader.name),
			slog.String("error", s.pending.Error()))
		return nil, io.EOF
	}
	if s.yielded == 0 {
		if last == nil {
			return nil, &FormatError{Path: s.reader.name, Offset: -1, Msg: "no 'timestamp:' lines found"}
		}
		if len(last.IRQNames) == 0 {
			return nil, &FormatError{Path: s.reader.name, Offset: -1, Msg: "no interrupts snapshots found"}
		}
		s.yield(last)
		return last, nil
	}
	if last == nil || len(last.IRQNames) == 0 {
		return nil, io.EOF
	}
	if last.LastIRQ() != s.lastYielded {
		slog.Debug("dropping incomplete last interrupts snapshot", slog.String("path", s.reader.name),
			slog.String("lastIRQ", last.LastIRQ()), slog.String("expected", s.lastYielded))
		return nil, io.EOF
	}
	s.yield(last)
	return last, nil
}

// parseIRQLine parses "<name>: <count>... [chip] [hwirq] [action...]".
func (s *interruptsScanner) parseIRQLine(line string) error {
	if len(s.cpus) == 0 {
		return s.reader.badFormat("interrupt line before the CPU header line")
	}
	fields := splitFields(line, len(s.cpus)+4)
	rawName := strings.TrimSuffix(fields[0], ":")
	if rawName == fields[0] || rawName == "" {
		return s.reader.badFormat("bad interrupt name '%s'", fields[0])
	}
	name := rawName
	if _, err := strconv.ParseUint(rawName, 10, 64); err == nil {
		name = "IRQ" + rawName
	}

	countFields := fields[1:min(len(s.cpus)+1, len(fields))]
	if len(countFields) == 0 {
		return s.reader.badFormat("no counts for interrupt '%s'", rawName)
	}
	counts := make([]int64, 0, len(s.cpus))
	for _, field := range countFields {
		count, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return s.reader.badFormat("bad count '%s' for interrupt '%s'", field, rawName)
		}
		counts = append(counts, count)
	}
	info := IRQInfo{Num: rawName}
	desc := fields[1+len(counts):]
	switch {
	case name == rawName:
		// named interrupts carry a free-form description instead of chip and hwirq
		info.Action = strings.Join(desc, " ")
	case len(desc) > 2:
		info.ChipName, info.HWIRQ, info.Action = desc[0], desc[1], desc[2]
	case len(desc) == 2:
		info.ChipName, info.HWIRQ = desc[0], desc[1]
	case len(desc) == 1:
		info.ChipName = desc[0]
	}
	// rows like "ERR: 0" have no per-CPU counts, the single count is used for every CPU
	for len(counts) < len(s.cpus) {
		counts = append(counts, counts[len(counts)-1])
	}

	if _, dup := s.cur.IRQInfo[name]; !dup {
		s.cur.IRQNames = append(s.cur.IRQNames, name)
	}
	s.cur.IRQInfo[name] = info
	for i, cpu := range s.cpus {
		irqs, ok := s.cur.CPU2IRQs[cpu]
		if !ok {
			irqs = map[string]int64{}
			s.cur.CPU2IRQs[cpu] = irqs
		}
		irqs[name] = counts[i]
	}
	return nil
}

// splitFields splits line on white space into at most n fields. The last field keeps the
// rest of the line, inner white space included.
func splitFields(line string, n int) []string {
	var fields []string
	rest := strings.TrimSpace(line)
	for rest != "" {
		if len(fields) == n-1 {
			fields = append(fields, rest)
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			fields = append(fields, rest)
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return fields
}
