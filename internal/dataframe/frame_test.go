package dataframe

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() *Frame {
	f := New()
	f.AppendRow(map[string]float64{TimestampCol: 100, "System-A": 1}, []string{TimestampCol, "System-A"})
	f.AppendRow(map[string]float64{TimestampCol: 101, "System-A": 3, "System-B": 10}, []string{TimestampCol, "System-A", "System-B"})
	f.AppendRow(map[string]float64{TimestampCol: 102, "System-B": 30}, nil)
	return f
}

func TestAppendRow(t *testing.T) {
	f := sampleFrame()
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{TimestampCol, "System-A", "System-B"}, f.Columns())

	a, ok := f.Column("System-A")
	require.True(t, ok)
	assert.Equal(t, 1.0, a[0])
	assert.Equal(t, 3.0, a[1])
	assert.True(t, math.IsNaN(a[2]))

	b, _ := f.Column("System-B")
	assert.True(t, math.IsNaN(b[0]))
	assert.Equal(t, 30.0, b[2])

	assert.Equal(t, map[string]float64{TimestampCol: 102, "System-B": 30}, f.Row(2))
	assert.True(t, math.IsNaN(f.Value("nope", 0)))
	assert.True(t, math.IsNaN(f.Value("System-A", 7)))
}

func TestAppendRowSortedOrder(t *testing.T) {
	f := New()
	f.AppendRow(map[string]float64{"b": 1, "a": 2, "c": 3}, nil)
	assert.Equal(t, []string{"a", "b", "c"}, f.Columns())
}

func TestSetAndDropColumns(t *testing.T) {
	f := sampleFrame()
	require.NoError(t, f.SetColumn("System-C", []float64{7, 8, 9}))
	assert.Equal(t, 8.0, f.Value("System-C", 1))
	require.NoError(t, f.SetColumn("System-C", []float64{1, 1, 1}))
	assert.Equal(t, 1.0, f.Value("System-C", 1))
	assert.Error(t, f.SetColumn("System-D", []float64{1}))

	f.DropColumns("System-A", "unknown")
	assert.Equal(t, []string{TimestampCol, "System-B", "System-C"}, f.Columns())
	assert.False(t, f.Has("System-A"))
	assert.Equal(t, 1.0, f.Value("System-C", 0))
}

func TestFilter(t *testing.T) {
	f := sampleFrame()
	f.SetLabel(1, "start")
	f.Filter(func(i int) bool { return i > 0 })
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, 101.0, f.Value(TimestampCol, 0))
	assert.Equal(t, "start", f.Label(0))
	assert.Equal(t, "", f.Label(1))

	f.AppendRow(map[string]float64{TimestampCol: 103}, nil)
	assert.Equal(t, "", f.Label(2))
}

func TestDiff(t *testing.T) {
	f := sampleFrame()
	diff, err := f.Diff(TimestampCol)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1}, diff)
	_, err = f.Diff("nope")
	assert.Error(t, err)
}

func TestColnames(t *testing.T) {
	tests := []struct {
		colname string
		scope   string
		metric  string
		scoped  bool
	}{
		{"CPU3-PkgPower", "CPU3", "PkgPower", true},
		{"System-PkgWatt%TDP", "System", "PkgWatt%TDP", true},
		{"FanSpeed-Fan 1-2", "FanSpeed", "Fan 1-2", true},
		{"TimeElapsed", "", "TimeElapsed", false},
		{"System-", "System", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.colname, func(t *testing.T) {
			scope, metric, scoped := SplitColname(tt.colname)
			assert.Equal(t, tt.scope, scope)
			assert.Equal(t, tt.metric, metric)
			assert.Equal(t, tt.scoped, scoped)
			if scoped {
				assert.Equal(t, tt.colname, JoinColname(scope, metric))
			}
		})
	}
}

func TestCPUScope(t *testing.T) {
	assert.Equal(t, "CPU12", CPUScope(12))
	cpu, ok := ParseCPUScope("CPU12")
	assert.True(t, ok)
	assert.Equal(t, 12, cpu)
	for _, bad := range []string{"System", "CPU", "CPUx", "CPU-1", "cpu1"} {
		_, ok := ParseCPUScope(bad)
		assert.False(t, ok, bad)
	}
	assert.True(t, IsTimeCol(TimeElapsedCol))
	assert.False(t, IsTimeCol("System-Total"))
}

func TestAddExpressionColumn(t *testing.T) {
	f := sampleFrame()
	expr, err := ParseExpression("[System-A] / 2 * 100")
	require.NoError(t, err)
	assert.Equal(t, []string{"System-A"}, expr.Vars())
	require.NoError(t, f.AddExpressionColumn("System-A%", expr))
	col, _ := f.Column("System-A%")
	assert.Equal(t, 50.0, col[0])
	assert.Equal(t, 150.0, col[1])
	assert.True(t, math.IsNaN(col[2]))

	expr, err = ParseExpression("max([System-A], [System-B])")
	require.NoError(t, err)
	require.NoError(t, f.AddExpressionColumn("System-Max", expr))
	assert.Equal(t, 10.0, f.Value("System-Max", 1))
	assert.True(t, math.IsNaN(f.Value("System-Max", 0)))

	expr, err = ParseExpression("[System-A] > 2")
	require.NoError(t, err)
	require.NoError(t, f.AddExpressionColumn("System-Big", expr))
	assert.Equal(t, 0.0, f.Value("System-Big", 0))
	assert.Equal(t, 1.0, f.Value("System-Big", 1))

	expr, err = ParseExpression("[System-Nope] + 1")
	require.NoError(t, err)
	assert.Error(t, f.AddExpressionColumn("x", expr))

	_, err = ParseExpression("1 +")
	assert.Error(t, err)
}
