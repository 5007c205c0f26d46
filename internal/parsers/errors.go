package parsers

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBadFormat is matched by every error caused by input that does not follow the
	// expected raw statistics format.
	ErrBadFormat = errors.New("bad format")
	// ErrBug is matched by errors reporting a broken internal invariant.
	ErrBug = errors.New("BUG")
	// ErrConfig is returned when a parser is constructed with an invalid input selection.
	ErrConfig = errors.New("bad parser configuration")
)

// FormatError describes a bad-format condition and where it was found.
type FormatError struct {
	Path   string // file path, or "<lines>" for an in-memory line source
	Line   int    // 1-based line number, 0 if unknown
	Offset int64  // byte offset, -1 if unknown
	Msg    string
}

func (e *FormatError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: bad format: %s", e.Path, e.Line, e.Msg)
	case e.Offset >= 0:
		return fmt.Sprintf("%s@%d: bad format: %s", e.Path, e.Offset, e.Msg)
	default:
		return fmt.Sprintf("%s: bad format: %s", e.Path, e.Msg)
	}
}

// Is makes errors.Is(err, ErrBadFormat) true for every *FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrBadFormat
}

// IsBadFormat reports whether err is, or wraps, a bad-format error.
func IsBadFormat(err error) bool {
	return errors.Is(err, ErrBadFormat)
}

func bugf(format string, args ...any) error {
	return errors.Wrapf(ErrBug, format, args...)
}
