package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		wantErr bool
	}{
		{name: "path", in: FromPath("/tmp/x")},
		{name: "lines", in: FromLines("a")},
		{name: "neither", in: Input{}, wantErr: true},
		{name: "both", in: Input{Path: "/tmp/x", Lines: slices.Values([]string{"a"})}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			assert.NoError(t, err)
		})
	}

	for _, ctor := range []func(Input) error{
		func(in Input) error { _, err := NewTurbostatParser(in, false); return err },
		func(in Input) error { _, err := NewIPMIParser(in, false); return err },
		func(in Input) error { _, err := NewInterruptsParser(in); return err },
		func(in Input) error { _, err := NewSPECjbbCtrlLogParser(in); return err },
		func(in Input) error { _, err := NewSPECjbbCtrlOutParser(in); return err },
	} {
		assert.ErrorIs(t, ctor(Input{}), ErrConfig)
	}
}

func readAll(t *testing.T, r *lineReader) ([]string, error) {
	t.Helper()
	var lines []string
	for {
		line, ok, err := r.next()
		if err != nil || !ok {
			return lines, err
		}
		lines = append(lines, line)
	}
}

func TestLineReader(t *testing.T) {
	path := writeTemp(t, "stats.txt", "one\r\ntwo\n\nthree")
	lines, err := readAll(t, newLineReader(FromPath(path)))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "three"}, lines)

	lines, err = readAll(t, newLineReader(FromText("a\nb\n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)

	lines, err = readAll(t, newSectionLineReader("section", strings.NewReader("x\ny\n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, lines)
}

func TestLineReaderUnread(t *testing.T) {
	r := newLineReader(FromLines("a", "b", "c"))
	line, ok, err := r.next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", line)
	assert.Equal(t, 1, r.lineNum)

	r.unread(line)
	assert.Equal(t, 0, r.lineNum)
	lines, err := readAll(t, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestLineReaderLazyOpen(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")
	// constructing a parser for a missing file is fine, the error surfaces on first read
	p, err := NewIPMIParser(FromPath(missing), false)
	require.NoError(t, err)
	_, err = p.Next()
	require.Error(t, err)
	assert.False(t, IsBadFormat(err))
	assert.Contains(t, err.Error(), "failed to open")
}

func TestLineReaderCloseEarly(t *testing.T) {
	r := newLineReader(FromLines("a", "b"))
	_, _, err := r.next()
	require.NoError(t, err)
	require.NoError(t, r.close())
	_, ok, err := r.next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		err  *FormatError
		want string
	}{
		{&FormatError{Path: "a.txt", Line: 3, Offset: -1, Msg: "oops"}, "a.txt:3: bad format: oops"},
		{&FormatError{Path: "a.txt", Offset: 42, Msg: "oops"}, "a.txt@42: bad format: oops"},
		{&FormatError{Path: "<lines>", Offset: -1, Msg: "oops"}, "<lines>: bad format: oops"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrBadFormat)
			assert.True(t, IsBadFormat(tt.err))
		})
	}
	assert.ErrorIs(t, bugf("broken %d", 1), ErrBug)
	assert.False(t, IsBadFormat(bugf("broken")))
}
