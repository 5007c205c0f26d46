package progress

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards the buffer against the redraw goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMultiSpinner(t *testing.T) {
	var out syncBuffer
	spinner := NewMultiSpinnerTo(&out, false)
	require.NoError(t, spinner.AddSpinner("A"))
	require.NoError(t, spinner.AddSpinner("B"))
	assert.Error(t, spinner.AddSpinner("A"))
	spinner.Start()

	assert.NoError(t, spinner.Status("A", "FOO"))
	assert.NoError(t, spinner.Status("B", "BAR"))
	assert.Error(t, spinner.Status("C", "WOOPS"))
	spinner.Finish()
	// a second Finish is a no-op
	spinner.Finish()

	text := out.String()
	assert.Contains(t, text, "FOO")
	assert.Contains(t, text, "BAR")
	assert.NotContains(t, text, "\x1b[1A")
	assert.Equal(t, 1, strings.Count(text, "FOO"))
}

func TestMultiSpinnerTTY(t *testing.T) {
	var out syncBuffer
	spinner := NewMultiSpinnerTo(&out, true)
	require.NoError(t, spinner.AddSpinner("A"))
	spinner.Start()
	spinner.Finish()
	assert.Contains(t, out.String(), "\x1b[1A")
}
