// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

/*
Package progress shows the per-result status of long running commands on the terminal.
*/
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinChars = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// MultiSpinnerUpdateFunc sets the status shown for a label.
type MultiSpinnerUpdateFunc func(label string, status string) error

type spinnerState struct {
	label       string
	status      string
	statusIsNew bool
	spinIndex   int
}

// MultiSpinner draws one status line per label. On a terminal the lines are redrawn in place,
// otherwise only status changes are printed.
type MultiSpinner struct {
	mu       sync.Mutex
	out      io.Writer
	isTTY    bool
	spinners []spinnerState
	ticker   *time.Ticker
	done     chan struct{}
	spinning bool
}

// NewMultiSpinner creates a spinner writing to stderr.
func NewMultiSpinner() *MultiSpinner {
	return NewMultiSpinnerTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewMultiSpinnerTo creates a spinner writing to out. isTTY enables in-place redrawing.
func NewMultiSpinnerTo(out io.Writer, isTTY bool) *MultiSpinner {
	return &MultiSpinner{out: out, isTTY: isTTY, done: make(chan struct{})}
}

// AddSpinner adds a line for label, which must be unique.
func (ms *MultiSpinner) AddSpinner(label string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, spinner := range ms.spinners {
		if spinner.label == label {
			return fmt.Errorf("spinner with label %s already exists", label)
		}
	}
	ms.spinners = append(ms.spinners, spinnerState{label: label, status: "?"})
	return nil
}

// Start draws the lines and starts redrawing them periodically.
func (ms *MultiSpinner) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.spinning {
		return
	}
	ms.draw(true)
	ms.ticker = time.NewTicker(250 * time.Millisecond)
	ms.spinning = true
	go ms.onTick()
}

// Finish stops redrawing and prints the final state.
func (ms *MultiSpinner) Finish() {
	ms.mu.Lock()
	if !ms.spinning {
		ms.mu.Unlock()
		return
	}
	ms.ticker.Stop()
	ms.spinning = false
	ms.mu.Unlock()
	ms.done <- struct{}{}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.draw(false)
}

// Status updates the status of a label.
func (ms *MultiSpinner) Status(label string, status string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, spinner := range ms.spinners {
		if spinner.label == label {
			if status != spinner.status {
				ms.spinners[i].status = status
				ms.spinners[i].statusIsNew = true
			}
			return nil
		}
	}
	return fmt.Errorf("did not find spinner with label %s", label)
}

func (ms *MultiSpinner) onTick() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.ticker.C:
			ms.mu.Lock()
			ms.draw(true)
			ms.mu.Unlock()
		}
	}
}

// draw must be called with ms.mu held.
func (ms *MultiSpinner) draw(goUp bool) {
	for i, spinner := range ms.spinners {
		if !ms.isTTY && !spinner.statusIsNew {
			continue
		}
		fmt.Fprintf(ms.out, "%-20s  %s  %-40s\n", spinner.label, spinChars[spinner.spinIndex], spinner.status)
		ms.spinners[i].statusIsNew = false
		ms.spinners[i].spinIndex = (spinner.spinIndex + 1) % len(spinChars)
	}
	if goUp && ms.isTTY {
		for range ms.spinners {
			fmt.Fprintf(ms.out, "\x1b[1A")
		}
	}
}
