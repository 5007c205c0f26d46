package mdc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"slices"
	"strings"

	"statscollect/internal/parsers"

	"github.com/pkg/errors"
)

// Tool names, also the names of the embedded definition files.
const (
	ToolTurbostat  = "turbostat"
	ToolIPMI       = "ipmi"
	ToolInterrupts = "interrupts"
	ToolACPower    = "acpower"
)

const (
	tooDeepSuffix    = "-"
	tooShallowSuffix = "+"
	rateSuffix       = "_rate"
)

// Turbostat returns the definitions of the turbostat metrics in metrics.
func Turbostat(metrics []string) (*Definitions, error) {
	d, err := Load(ToolTurbostat)
	if err != nil {
		return nil, err
	}
	d.Mangle(metrics, true)
	d.sortCStateRequests()
	return d, nil
}

// sortCStateRequests places the too deep and too shallow request counts of a C-state around its
// request count: C1-, C1, C1+, C1E-, C1E, C1E+.
func (d *Definitions) sortCStateRequests() {
	isReqCount := func(name string) bool {
		return slices.Equal(d.defs[name].Categories, []string{"C-state", "Requested", "Count"})
	}
	placed := map[string]bool{}
	var order []string
	for _, name := range d.order {
		if placed[name] {
			continue
		}
		if !isReqCount(name) {
			order = append(order, name)
			placed[name] = true
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, tooDeepSuffix), tooShallowSuffix)
		for _, candidate := range []string{base + tooDeepSuffix, base, base + tooShallowSuffix} {
			if _, ok := d.defs[candidate]; ok && !placed[candidate] {
				order = append(order, candidate)
				placed[candidate] = true
			}
		}
	}
	d.order = order
}

// IPMI builds definitions for the sensors of an IPMI snapshot. IPMI sensors are not known in
// advance: every sensor with a known unit gets a copy of its category definition, titled
// with the sensor name.
func IPMI(snap *parsers.IPMISnapshot) (*Definitions, error) {
	categories, err := Load(ToolIPMI)
	if err != nil {
		return nil, err
	}
	d := NewDefinitions(ToolIPMI)
	for _, name := range snap.Names {
		if name == parsers.TimeElapsedMetric {
			if def, ok := categories.Get(name); ok {
				d.Add(def)
			}
			continue
		}
		category := parsers.IPMICategory(snap.Readings[name].Unit)
		if category == "" {
			continue
		}
		catDef, ok := categories.Get(category)
		if !ok {
			return nil, errors.Errorf("IPMI category '%s' has no definition", category)
		}
		def := *catDef
		def.Name = name
		def.Title = name
		def.Categories = []string{category}
		d.Add(&def)
	}
	return d, nil
}

// Interrupts returns the definitions of the interrupts metrics in metrics. Metrics not
// described by the embedded definitions get a generated one.
func Interrupts(metrics []string) (*Definitions, error) {
	d, err := Load(ToolInterrupts)
	if err != nil {
		return nil, err
	}
	d.Mangle(metrics, true)
	for _, metric := range metrics {
		if d.Has(metric) {
			continue
		}
		if name, ok := strings.CutSuffix(metric, rateSuffix); ok {
			d.Add(&Definition{
				Name:      metric,
				Title:     name + " interrupts rate",
				Descr:     "The average rate of " + name + " interrupts during the measurement interval.",
				Unit:      "interrupts/s",
				ShortUnit: "intr/s",
				Scope:     "CPU",
			})
			continue
		}
		d.Add(&Definition{
			Name:      metric,
			Title:     metric + " interrupts count",
			Descr:     "Number of " + metric + " interrupts serviced during the measurement interval.",
			Unit:      "interrupts",
			ShortUnit: "intr",
			Scope:     "CPU",
		})
	}
	return d, nil
}

// ACPower returns the AC power meter definitions.
func ACPower() (*Definitions, error) {
	return Load(ToolACPower)
}
