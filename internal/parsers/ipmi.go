package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ipmiTimestampRegex       = regexp.MustCompile(`^timestamp \| (\d+(\.\d+)?)$`)
	ipmiLegacyTimestampRegex = regexp.MustCompile(`^timestamp \| (\d+_\d+_\d+_\d+:\d+:\d+)$`)
	ipmiEntryRegex           = regexp.MustCompile(`^(.+)\|(.+)\|(.+)$`)
)

const ipmiLegacyTimeLayout = "2006_01_02_15:04:05"

// IPMI sensor categories, derived from the unit of a reading.
const (
	IPMICategoryFanSpeed    = "FanSpeed"
	IPMICategoryTemperature = "Temperature"
	IPMICategoryPower       = "Power"
	IPMICategoryCurrent     = "Current"
	IPMICategoryVoltage     = "Voltage"
)

var ipmiUnit2Category = map[string]string{
	"RPM":       IPMICategoryFanSpeed,
	"degrees C": IPMICategoryTemperature,
	"Watts":     IPMICategoryPower,
	"Watt":      IPMICategoryPower,
	"Amps":      IPMICategoryCurrent,
	"Amp":       IPMICategoryCurrent,
	"Volts":     IPMICategoryVoltage,
	"Volt":      IPMICategoryVoltage,
}

// IPMICategory returns the category of a sensor reading unit, or "" for unknown units.
func IPMICategory(unit string) string {
	return ipmiUnit2Category[unit]
}

// IPMIReading is one sensor reading. Valid is false for sensors that could not be read.
type IPMIReading struct {
	Value float64
	Unit  string
	Valid bool
}

// IPMISnapshot holds the readings of one timestamped ipmitool block.
type IPMISnapshot struct {
	Timestamp float64
	// Names lists sensor names in the order they appeared.
	Names    []string
	Readings map[string]IPMIReading
}

func newIPMISnapshot(ts float64) *IPMISnapshot {
	return &IPMISnapshot{Timestamp: ts, Readings: map[string]IPMIReading{}}
}

// add records a reading, renaming repeated sensor names to "<name>_2", "<name>_3", etc.
func (s *IPMISnapshot) add(name string, reading IPMIReading) {
	key := name
	for n := 2; ; n++ {
		if _, exists := s.Readings[key]; !exists {
			break
		}
		key = name + "_" + strconv.Itoa(n)
	}
	s.Names = append(s.Names, key)
	s.Readings[key] = reading
}

// IPMIParser parses the output of ipmitool running in a loop, each iteration preceded by a
// "timestamp | <epoch>" line.
type IPMIParser struct {
	reader      *lineReader
	derivatives bool
	cur         *IPMISnapshot
	firstTS     float64
	yielded     int
	done        bool
}

// NewIPMIParser creates a parser. With derivatives set, every snapshot after the first gets a
// TimeElapsed reading.
func NewIPMIParser(in Input, derivatives bool) (*IPMIParser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	return &IPMIParser{reader: newLineReader(in), derivatives: derivatives}, nil
}

// Next returns the next snapshot, or io.EOF when there are no more.
func (p *IPMIParser) Next() (*IPMISnapshot, error) {
	if p.done {
		return nil, io.EOF
	}
	snap, err := p.next()
	if err != nil {
		p.done = true
		_ = p.reader.close()
		return nil, err
	}
	if p.yielded == 0 {
		p.firstTS = snap.Timestamp
	} else if p.derivatives {
		snap.add(TimeElapsedMetric, IPMIReading{Value: snap.Timestamp - p.firstTS, Valid: true})
	}
	p.yielded++
	return snap, nil
}

// Close releases the input. It is only needed when Next was not called until io.EOF.
func (p *IPMIParser) Close() error {
	p.done = true
	return p.reader.close()
}

func (p *IPMIParser) next() (*IPMISnapshot, error) {
	for {
		line, ok, err := p.reader.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ts, isTS, err := p.parseTimestamp(line)
		if err != nil {
			return nil, err
		}
		if isTS {
			prev := p.cur
			p.cur = newIPMISnapshot(ts)
			if prev != nil {
				return prev, nil
			}
			continue
		}
		if p.cur == nil {
			return nil, p.reader.badFormat("ipmi data does not start with a 'timestamp | <time>' line")
		}
		name, reading, err := p.parseEntry(line)
		if err != nil {
			return nil, err
		}
		p.cur.add(name, reading)
	}
	if p.cur == nil {
		if p.yielded == 0 {
			return nil, p.reader.badFormat("empty ipmi statistics")
		}
		return nil, io.EOF
	}
	last := p.cur
	p.cur = nil
	return last, nil
}

func (p *IPMIParser) parseTimestamp(line string) (float64, bool, error) {
	if !strings.HasPrefix(line, "timestamp") {
		return 0, false, nil
	}
	if m := ipmiTimestampRegex.FindStringSubmatch(line); m != nil {
		ts, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false, p.reader.badFormat("bad ipmi time-stamp '%s'", m[1])
		}
		return ts, true, nil
	}
	if m := ipmiLegacyTimestampRegex.FindStringSubmatch(line); m != nil {
		t, err := time.ParseInLocation(ipmiLegacyTimeLayout, m[1], time.Local)
		if err != nil {
			return 0, false, p.reader.badFormat("bad ipmi time-stamp '%s'", m[1])
		}
		return float64(t.Unix()), true, nil
	}
	return 0, false, p.reader.badFormat("bad ipmi time-stamp line '%s'", line)
}

// parseEntry parses a "name | value unit | status" line.
func (p *IPMIParser) parseEntry(line string) (string, IPMIReading, error) {
	m := ipmiEntryRegex.FindStringSubmatch(line)
	if m == nil {
		return "", IPMIReading{}, p.reader.badFormat("unexpected ipmi line '%s'", line)
	}
	name := strings.TrimSpace(m[1])
	valueText := strings.TrimSpace(m[2])
	if valueText == "no reading" || valueText == "disabled" {
		return name, IPMIReading{}, nil
	}
	value, unit, found := strings.Cut(valueText, " ")
	if !found {
		return name, IPMIReading{}, nil
	}
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Debug("unreadable ipmi sensor value", slog.String("sensor", name), slog.String("value", valueText))
		return name, IPMIReading{}, nil
	}
	return name, IPMIReading{Value: val, Unit: strings.TrimSpace(unit), Valid: true}, nil
}
