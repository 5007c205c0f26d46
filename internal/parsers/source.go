// Package parsers turns raw statistics text (turbostat, ipmitool, /proc/interrupts snapshots,
// SPECjbb2015 logs) into structured per-snapshot datasets.
package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const linesSourceName = "<lines>"

// maxLineSize bounds a single raw line; /proc/interrupts rows grow with the CPU count.
const maxLineSize = 4 * 1024 * 1024

// Input selects where a parser reads lines from. Exactly one of Path and Lines must be set.
type Input struct {
	Path  string
	Lines iter.Seq[string]
}

// FromPath is a convenience constructor for a file input.
func FromPath(path string) Input {
	return Input{Path: path}
}

// FromLines is a convenience constructor for an in-memory input.
func FromLines(lines ...string) Input {
	return Input{Lines: func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}}
}

// FromText splits text into lines and returns an input reading them.
func FromText(text string) Input {
	return FromLines(strings.Split(strings.TrimSuffix(text, "\n"), "\n")...)
}

func (in Input) validate() error {
	if in.Path == "" && in.Lines == nil {
		return errors.Wrap(ErrConfig, "either a path or a line iterator must be provided")
	}
	if in.Path != "" && in.Lines != nil {
		return errors.Wrap(ErrConfig, "a path and a line iterator are mutually exclusive")
	}
	return nil
}

// Name returns the path, or "<lines>" for an in-memory input.
func (in Input) Name() string {
	if in.Path != "" {
		return in.Path
	}
	return linesSourceName
}

// Open returns a reader of the whole input. Lines of an in-memory input are joined with "\n".
func (in Input) Open() (io.ReadCloser, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Lines == nil {
		file, err := os.Open(in.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open '%s'", in.Path)
		}
		return file, nil
	}
	var sb strings.Builder
	for line := range in.Lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return io.NopCloser(strings.NewReader(sb.String())), nil
}

// lineReader hands out lines one at a time. The file, if any, is opened on the first call to
// next and closed once the lines are exhausted or close is called.
type lineReader struct {
	name    string
	path    string
	seq     iter.Seq[string]
	reader  io.Reader
	file    *os.File
	scanner *bufio.Scanner
	pull    func() (string, bool)
	stop    func()
	pending []string
	lineNum int
	started bool
	done    bool
}

func newLineReader(in Input) *lineReader {
	return &lineReader{name: in.Name(), path: in.Path, seq: in.Lines}
}

// newSectionLineReader reads lines from r, which is not closed by the reader.
func newSectionLineReader(name string, r io.Reader) *lineReader {
	return &lineReader{name: name, reader: r}
}

func (r *lineReader) start() error {
	r.started = true
	switch {
	case r.seq != nil:
		r.pull, r.stop = iter.Pull(r.seq)
	case r.reader != nil:
		r.scanner = newScanner(r.reader)
	default:
		file, err := os.Open(r.path)
		if err != nil {
			r.done = true
			return errors.Wrapf(err, "failed to open '%s'", r.path)
		}
		r.file = file
		r.scanner = newScanner(file)
	}
	return nil
}

func newScanner(rd io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// next returns the next line without its line terminator. ok is false at the end of input.
func (r *lineReader) next() (line string, ok bool, err error) {
	if n := len(r.pending); n > 0 {
		line = r.pending[n-1]
		r.pending = r.pending[:n-1]
		r.lineNum++
		return line, true, nil
	}
	if r.done {
		return "", false, nil
	}
	if !r.started {
		if err = r.start(); err != nil {
			return "", false, err
		}
	}
	if r.pull != nil {
		line, ok = r.pull()
	} else if r.scanner.Scan() {
		line, ok = r.scanner.Text(), true
	} else if err = r.scanner.Err(); err != nil {
		_ = r.close()
		return "", false, errors.Wrapf(err, "failed to read '%s'", r.name)
	}
	if !ok {
		return "", false, r.close()
	}
	r.lineNum++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// unread pushes a line back so that the following next call returns it again.
func (r *lineReader) unread(line string) {
	r.pending = append(r.pending, line)
	r.lineNum--
}

func (r *lineReader) close() error {
	r.done = true
	r.pending = nil
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		if err != nil {
			return errors.Wrapf(err, "failed to close '%s'", r.name)
		}
	}
	return nil
}

func (r *lineReader) badFormat(format string, args ...any) error {
	return &FormatError{Path: r.name, Line: r.lineNum, Offset: -1, Msg: fmt.Sprintf(format, args...)}
}
