package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interruptsSnapshot1 = `timestamp: 1234567890.1
           CPU0       CPU1
  0:         22          0  IR-IO-APIC   2-edge            timer
  1:          2          0  IR-IO-APIC   1-edge            i8042
123:      25164    5760490  IR-PCI-MSI   1048576-edge      enp2s0
NMI:          0          1  Non-maskable interrupts
LOC:     100000     200000  Local timer interrupts
ERR:          0
`

const interruptsSnapshot2 = `timestamp: 1234567891.1
           CPU0       CPU1
  0:         32          0  IR-IO-APIC   2-edge            timer
  1:          2          5  IR-IO-APIC   1-edge            i8042
123:      25264    5760590  IR-PCI-MSI   1048576-edge      enp2s0
NMI:          0          1  Non-maskable interrupts
LOC:     101000     201000  Local timer interrupts
ERR:          0
`

func parseAllInterrupts(t *testing.T, in Input) ([]*InterruptsSnapshot, error) {
	t.Helper()
	p, err := NewInterruptsParser(in)
	require.NoError(t, err)
	var snaps []*InterruptsSnapshot
	for {
		snap, err := p.Next()
		if err == io.EOF {
			return snaps, nil
		}
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, snap)
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInterruptsSnapshotContent(t *testing.T) {
	snaps, err := parseAllInterrupts(t, FromText(interruptsSnapshot1))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	snap := snaps[0]

	assert.Equal(t, 1234567890.1, snap.Timestamp)
	assert.Equal(t, []int{0, 1}, snap.CPUs)
	assert.Equal(t, []string{"IRQ0", "IRQ1", "IRQ123", "NMI", "LOC", "ERR"}, snap.IRQNames)
	assert.Equal(t, int64(25164), snap.CPU2IRQs[0]["IRQ123"])
	assert.Equal(t, int64(5760490), snap.CPU2IRQs[1]["IRQ123"])
	assert.Equal(t, IRQInfo{Num: "0", ChipName: "IR-IO-APIC", HWIRQ: "2-edge", Action: "timer"}, snap.IRQInfo["IRQ0"])
	assert.Equal(t, IRQInfo{Num: "NMI", Action: "Non-maskable interrupts"}, snap.IRQInfo["NMI"])
	assert.Equal(t, IRQInfo{Num: "ERR"}, snap.IRQInfo["ERR"])
	// the single count is used for every CPU
	assert.Equal(t, int64(0), snap.CPU2IRQs[1]["ERR"])

	// every IRQ with counts has an info entry
	for _, irqs := range snap.CPU2IRQs {
		for name := range irqs {
			assert.Contains(t, snap.IRQInfo, name)
		}
	}
}

func TestInterruptsReplicatedCount(t *testing.T) {
	text := "timestamp: 1.0\nCPU0 CPU1 CPU2\nMIS: 7\n"
	snaps, err := parseAllInterrupts(t, FromText(text))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	for _, cpu := range []int{0, 1, 2} {
		assert.Equal(t, int64(7), snaps[0].CPU2IRQs[cpu]["MIS"])
	}
}

func TestInterruptsActionWithSpaces(t *testing.T) {
	text := "timestamp: 1.0\nCPU0\n 25: 3 PCI-MSI 512000-edge ahci[0000:00:1f.2] extra words\n"
	snaps, err := parseAllInterrupts(t, FromText(text))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "ahci[0000:00:1f.2] extra words", snaps[0].IRQInfo["IRQ25"].Action)
}

func TestInterruptsGoodInput(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		yielded int
	}{
		{name: "single snapshot", text: interruptsSnapshot1, yielded: 1},
		{name: "trailing time-stamp", text: interruptsSnapshot1 + "timestamp: 1234567890.2\n", yielded: 1},
		{name: "trailing time-stamp and header", text: interruptsSnapshot1 + "timestamp: 1234567890.2\n  CPU0 CPU1\n", yielded: 1},
		{
			name:    "interrupted",
			text:    interruptsSnapshot1 + "timestamp: 1234567890.2\n  CPU0 CPU1\nproc-interrupts-helper: error: interrupted, exiting\n",
			yielded: 1,
		},
		{
			name:    "single CPU snapshots then interrupted",
			text:    "timestamp: 1.1\nCPU0\n0: 1 timer\ntimestamp: 2.1\nCPU0\n0: 2 timer\nstatscollect: interrupted, exiting\n",
			yielded: 2,
		},
		{name: "two snapshots", text: interruptsSnapshot1 + interruptsSnapshot2, yielded: 2},
		{name: "comments", text: "# dump\n" + interruptsSnapshot1 + "# end\n", yielded: 1},
		{name: "CPU set changes", text: interruptsSnapshot1 + "timestamp: 1234567891.1\nCPU0\n0: 40 timer\nERR: 0\n", yielded: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := parseAllInterrupts(t, FromText(tt.text))
			require.NoError(t, err)
			assert.Len(t, snaps, tt.yielded)
		})
	}
}

func TestInterruptsBadInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "comment only", text: "  # comment"},
		{name: "time-stamp only", text: "timestamp: 1234567890.1"},
		{name: "header only", text: "CPU0 CPU1"},
		{name: "integer time-stamp", text: "timestamp: 1234567890\nCPU0 CPU1\n"},
		{name: "non-numeric time-stamp", text: "timestamp: K1\nCPU0 CPU1\n"},
		{name: "negative CPU", text: "timestamp: 1.0\nCPU-1 CPU2\n"},
		{name: "bad header token", text: "timestamp: 1.0\nCPU0 XPU1\n"},
		{name: "no rows", text: "timestamp: 1.0\nCPU0 CPU1\nproc-interrupts-helper: error: interrupted, exiting\n"},
		{name: "non-integer count", text: "timestamp: 1.0\nCPU0\n1: x\n"},
		{name: "non-integer second count", text: "timestamp: 1.0\nCPU0 CPU1\n1: 5 x IO-APIC 1-edge i8042\n"},
		{name: "no counts", text: "timestamp: 1.0\nCPU0\n1:\n"},
		{name: "missing colon", text: "timestamp: 1.0\nCPU0\n1 5\n"},
		{name: "empty snapshot in the middle", text: "timestamp: 1.0\nCPU0\ntimestamp: 2.0\nCPU0\n0: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := parseAllInterrupts(t, FromText(tt.text))
			require.Error(t, err)
			assert.True(t, IsBadFormat(err), err.Error())
			assert.Empty(t, snaps)
		})
	}
}

func TestInterruptsTruncatedLast(t *testing.T) {
	lines := strings.Split(interruptsSnapshot2, "\n")
	cut := strings.Join(lines[:4], "\n") + "\n"
	snaps, err := parseAllInterrupts(t, FromText(interruptsSnapshot1+cut))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1234567890.1, snaps[0].Timestamp)

	// nothing to compare against
	snaps, err = parseAllInterrupts(t, FromText(cut))
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "IRQ1", snaps[0].LastIRQ())
}

func TestInterruptsCutLastLine(t *testing.T) {
	tests := []struct {
		name string
		tail string
	}{
		{name: "cut interrupt name", tail: "timestamp: 1234567891.1\n           CPU0       CPU1\n  0:         32          0  IR-IO-APIC   2-edge            timer\nNM"},
		{name: "cut CPU header", tail: "timestamp: 1234567891.1\nCPU0 CP"},
		{name: "cut count", tail: "timestamp: 1234567891.1\n           CPU0       CPU1\n  0:         32          0x"},
		{name: "cut before sentinel", tail: "timestamp: 1234567891.1\nCPU0 CP\nstatscollect: " + InterruptsSentinel + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := parseAllInterrupts(t, FromText(interruptsSnapshot1+tt.tail))
			require.NoError(t, err)
			require.Len(t, snaps, 1)
			assert.Equal(t, 1234567890.1, snaps[0].Timestamp)
		})
	}
}

func TestInterruptsBadLineInTheMiddle(t *testing.T) {
	bad := "timestamp: 1234567891.1\nCPU0 CPU1\n1: 5 x IO-APIC 1-edge i8042\n"
	tests := []struct {
		name string
		text string
	}{
		{name: "followed by a row", text: interruptsSnapshot1 + bad + "ERR: 0\n"},
		{name: "followed by a snapshot", text: interruptsSnapshot1 + bad + interruptsSnapshot2},
		{name: "bad header followed by a row", text: interruptsSnapshot1 + "timestamp: 1234567891.1\nCPU0 XPU1\nERR: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps, err := parseAllInterrupts(t, FromText(tt.text))
			require.Error(t, err)
			assert.True(t, IsBadFormat(err), err.Error())
			assert.Len(t, snaps, 1)
		})
	}
}

func TestInterruptsProbeCached(t *testing.T) {
	p, err := NewInterruptsParser(FromText("timestamp: K1\nCPU0\n"))
	require.NoError(t, err)
	err1 := p.Probe()
	require.Error(t, err1)
	assert.Same(t, err1, p.Probe())

	p, err = NewInterruptsParser(FromText(interruptsSnapshot1))
	require.NoError(t, err)
	require.NoError(t, p.Probe())
	require.NoError(t, p.Probe())
	// probing does not consume the data
	snap, err := p.Next()
	require.NoError(t, err)
	assert.Len(t, snap.IRQNames, 6)
}

func TestIsNumericIRQ(t *testing.T) {
	assert.True(t, IsNumericIRQ("IRQ0"))
	assert.True(t, IsNumericIRQ("IRQ123"))
	assert.False(t, IsNumericIRQ("IRQ"))
	assert.False(t, IsNumericIRQ("NMI"))
	assert.False(t, IsNumericIRQ("IRQx"))
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		line string
		n    int
		want []string
	}{
		{"a b c", 5, []string{"a", "b", "c"}},
		{"  a   b  c d  ", 3, []string{"a", "b", "c d"}},
		{"a", 1, []string{"a"}},
		{"", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, splitFields(tt.line, tt.n))
		})
	}
}

func manySnapshots(count int) string {
	var sb strings.Builder
	for i := range count {
		fmt.Fprintf(&sb, "timestamp: %d.5\n  CPU0 CPU1\n", 1000+i)
		for irq := range 20 {
			fmt.Fprintf(&sb, "%d: %d %d IR-PCI-MSI %d-edge dev%d\n", irq, i*irq, i, irq, irq)
		}
		fmt.Fprintf(&sb, "NMI: %d %d Non-maskable interrupts\n", i, i)
	}
	return sb.String()
}

func TestInterruptsFirstAndLast(t *testing.T) {
	full := manySnapshots(50)
	lines := strings.Split(manySnapshots(51), "\n")
	// 50 complete snapshots followed by a cut one
	withCut := strings.Join(lines[:len(lines)-8], "\n") + "\n"
	withTS := full + "timestamp: 9999.5\n"

	tests := []struct {
		name      string
		content   string
		blockSize int64
		firstTS   float64
		lastTS    float64
	}{
		{name: "complete", content: full, blockSize: 4096, firstTS: 1000.5, lastTS: 1049.5},
		{name: "small blocks", content: full, blockSize: 16, firstTS: 1000.5, lastTS: 1049.5},
		{name: "cut last snapshot", content: withCut, blockSize: 4096, firstTS: 1000.5, lastTS: 1049.5},
		{name: "cut last snapshot, small blocks", content: withCut, blockSize: 100, firstTS: 1000.5, lastTS: 1049.5},
		{name: "trailing time-stamp", content: withTS, blockSize: 4096, firstTS: 1000.5, lastTS: 1049.5},
		{name: "single snapshot", content: interruptsSnapshot1, blockSize: 4096, firstTS: 1234567890.1, lastTS: 1234567890.1},
		{name: "single cut snapshot", content: "timestamp: 5.5\nCPU0\n0: 1 timer\n1: 2 i8042\n", blockSize: 8, firstTS: 5.5, lastTS: 5.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "interrupts.raw.txt", tt.content)
			p, err := NewInterruptsParser(FromPath(path))
			require.NoError(t, err)
			p.tailBlockSize = tt.blockSize
			first, last, err := p.FirstAndLast()
			require.NoError(t, err)
			assert.Equal(t, tt.firstTS, first.Timestamp)
			assert.Equal(t, tt.lastTS, last.Timestamp)
			assert.Equal(t, first.LastIRQ(), last.LastIRQ())
		})
	}
}

func TestInterruptsFirstAndLastMatchesFullParse(t *testing.T) {
	path := writeTemp(t, "interrupts.raw.txt", manySnapshots(30))
	snaps, err := parseAllInterrupts(t, FromPath(path))
	require.NoError(t, err)
	require.Len(t, snaps, 30)

	p, err := NewInterruptsParser(FromPath(path))
	require.NoError(t, err)
	first, last, err := p.FirstAndLast()
	require.NoError(t, err)
	assert.Equal(t, snaps[0], first)
	assert.Equal(t, snaps[29], last)
}

func TestInterruptsFirstAndLastErrors(t *testing.T) {
	p, err := NewInterruptsParser(FromText(interruptsSnapshot1))
	require.NoError(t, err)
	_, _, err = p.FirstAndLast()
	assert.ErrorIs(t, err, ErrConfig)

	path := writeTemp(t, "bad.txt", "timestamp: 1\nCPU0\n")
	p, err = NewInterruptsParser(FromPath(path))
	require.NoError(t, err)
	_, _, err = p.FirstAndLast()
	assert.True(t, IsBadFormat(err))

	p, err = NewInterruptsParser(FromPath(filepath.Join(t.TempDir(), "missing.txt")))
	require.NoError(t, err)
	_, _, err = p.FirstAndLast()
	require.Error(t, err)
	assert.False(t, IsBadFormat(err))
}

func TestLocateLastSnapshot(t *testing.T) {
	content := "timestamp: 1.0\nCPU0\n0: 1\ntimestamp: 2.0\nCPU0\n0: 2\n"
	r := strings.NewReader(content)
	second := int64(strings.Index(content, "timestamp: 2.0"))
	for _, blockSize := range []int64{1, 3, 7, 4096} {
		pos, err := locateLastSnapshot(r, int64(len(content)), blockSize)
		require.NoError(t, err)
		assert.Equal(t, second, pos)
		pos, err = locateLastSnapshot(r, second, blockSize)
		require.NoError(t, err)
		assert.Equal(t, int64(0), pos)
	}
	_, err := locateLastSnapshot(strings.NewReader("CPU0\n0: 1\n"), 10, 4)
	assert.ErrorIs(t, err, errNoTimestamp)
}
