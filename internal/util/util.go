// Package util has path and integer list helpers shared by the commands and the raw result code.
package util

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// AbsPath returns the absolute form of path. A leading "~" is replaced with the home directory
// of the current user.
func AbsPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[1:])
		}
	}
	return filepath.Abs(path)
}

// statIs reports whether path exists and satisfies isKind. An existing path of another kind is
// an error.
func statIs(path, kind string, isKind func(fs.FileMode) bool) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !isKind(info.Mode()) {
		return false, fmt.Errorf("%s not a %s", path, kind)
	}
	return true, nil
}

// FileExists reports whether path is an existing regular file.
func FileExists(path string) (bool, error) {
	return statIs(path, "file", fs.FileMode.IsRegular)
}

// DirectoryExists reports whether path is an existing directory.
func DirectoryExists(path string) (bool, error) {
	return statIs(path, "directory", fs.FileMode.IsDir)
}

// FileOrDirectoryExists reports whether anything exists at path.
func FileOrDirectoryExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// CreateDirectoryIfNotExists creates dir and its parents unless something already exists there.
func CreateDirectoryIfNotExists(dir string, perm os.FileMode) error {
	if FileOrDirectoryExists(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}
	return nil
}

var intRangeRegex = regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)

// IntRangeToIntList expands a string representing a range of integers into a slice of integers.
// For example, "1-3" will be expanded to [1, 2, 3]. And, "5" will be expanded to [5].
func IntRangeToIntList(input string) ([]int, error) {
	matches := intRangeRegex.FindStringSubmatch(strings.TrimSpace(input))
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid input format: %s", input)
	}
	start, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid start value: %s", matches[1])
	}
	if matches[2] == "" {
		return []int{start}, nil
	}
	end, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid end value: %s", matches[2])
	}
	if start > end {
		return nil, fmt.Errorf("start value is greater than end value: %d > %d", start, end)
	}
	result := make([]int, end-start+1)
	for i := start; i <= end; i++ {
		result[i-start] = i
	}
	return result, nil
}

// SelectiveIntRangeToIntList expands a string representing a selective range of integers into a
// sorted slice of unique integers. For example "1-3,7,9,11-13,2" will be expanded to
// [1, 2, 3, 7, 9, 11, 12, 13].
func SelectiveIntRangeToIntList(input string) ([]int, error) {
	var result []int
	for r := range strings.SplitSeq(input, ",") {
		ints, err := IntRangeToIntList(r)
		if err != nil {
			return nil, err
		}
		result = append(result, ints...)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}
