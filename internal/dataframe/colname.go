package dataframe

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"strconv"
	"strings"
)

// Time columns present in every table.
const (
	TimestampCol   = "Timestamp"
	TimeElapsedCol = "TimeElapsed"
)

// ScopeSystem is the scope of whole-system values. Per-CPU scopes are "CPU<n>".
const ScopeSystem = "System"

const cpuScopePrefix = "CPU"

// SplitColname splits a "<scope>-<metric>" column name on the first "-". Columns without a
// scope, such as the time columns, return scoped == false and the whole name as the metric.
func SplitColname(colname string) (scope, metric string, scoped bool) {
	scope, metric, scoped = strings.Cut(colname, "-")
	if !scoped {
		return "", colname, false
	}
	return scope, metric, true
}

// JoinColname is the inverse of SplitColname.
func JoinColname(scope, metric string) string {
	if scope == "" {
		return metric
	}
	return scope + "-" + metric
}

// CPUScope returns the scope name of a CPU.
func CPUScope(cpu int) string {
	return cpuScopePrefix + strconv.Itoa(cpu)
}

// ParseCPUScope returns the CPU number of a "CPU<n>" scope.
func ParseCPUScope(scope string) (int, bool) {
	num, ok := strings.CutPrefix(scope, cpuScopePrefix)
	if !ok {
		return 0, false
	}
	cpu, err := strconv.Atoi(num)
	if err != nil || cpu < 0 {
		return 0, false
	}
	return cpu, true
}

// IsTimeCol reports whether colname is one of the time columns.
func IsTimeCol(colname string) bool {
	return colname == TimestampCol || colname == TimeElapsedCol
}
