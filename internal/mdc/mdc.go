// Package mdc provides metrics definitions: human-readable titles, descriptions and units of
// the metrics found in raw statistics. Definitions are embedded YAML files, one per tool.
package mdc

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

//go:embed defs/*.yml
var defsFS embed.FS

// Definition describes one metric.
type Definition struct {
	Name       string   `yaml:"-" json:"name"`
	Title      string   `yaml:"title" json:"title"`
	Descr      string   `yaml:"descr" json:"descr"`
	Unit       string   `yaml:"unit" json:"unit,omitempty"`
	ShortUnit  string   `yaml:"short_unit" json:"short_unit,omitempty"`
	Scope      string   `yaml:"scope" json:"scope,omitempty"`
	Categories []string `yaml:"categories" json:"categories,omitempty"`
	// Patterns make the definition a template for every metric matching one of the regular
	// expressions. "{groups[N]}" in the title and description is replaced with match group N,
	// "{GROUPS[N]}" with its upper-case version.
	Patterns []string `yaml:"patterns" json:"-"`
}

// Definitions is an ordered collection of metric definitions of one tool.
type Definitions struct {
	Tool  string
	order []string
	defs  map[string]*Definition
}

// NewDefinitions returns an empty collection.
func NewDefinitions(tool string) *Definitions {
	return &Definitions{Tool: tool, defs: map[string]*Definition{}}
}

// Load reads the embedded definitions of a tool.
func Load(tool string) (*Definitions, error) {
	path := "defs/" + tool + ".yml"
	data, err := defsFS.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "no metrics definitions for '%s'", tool)
	}
	return parse(tool, path, data)
}

func parse(tool, path string, data []byte) (*Definitions, error) {
	// the MapSlice keeps the order of the definitions, the map holds their contents
	var order yaml.MapSlice
	if err := yaml.Unmarshal(data, &order); err != nil {
		return nil, errors.Wrapf(err, "failed to parse '%s'", path)
	}
	var contents map[string]*Definition
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, errors.Wrapf(err, "failed to parse '%s'", path)
	}
	d := NewDefinitions(tool)
	for _, item := range order {
		name, ok := item.Key.(string)
		if !ok {
			return nil, errors.Errorf("bad metric name '%v' in '%s'", item.Key, path)
		}
		def := contents[name]
		if def == nil {
			return nil, errors.Errorf("empty definition of metric '%s' in '%s'", name, path)
		}
		for _, pattern := range def.Patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, errors.Wrapf(err, "bad pattern of metric '%s' in '%s'", name, path)
			}
		}
		def.Name = name
		d.Add(def)
	}
	return d, nil
}

// Add appends a definition, replacing an existing one with the same name in place.
func (d *Definitions) Add(def *Definition) {
	if _, ok := d.defs[def.Name]; !ok {
		d.order = append(d.order, def.Name)
	}
	d.defs[def.Name] = def
}

// Get returns the definition of a metric.
func (d *Definitions) Get(name string) (*Definition, bool) {
	def, ok := d.defs[name]
	return def, ok
}

// Has reports whether a metric is defined.
func (d *Definitions) Has(name string) bool {
	_, ok := d.defs[name]
	return ok
}

// Names returns the metric names in definition order.
func (d *Definitions) Names() []string {
	return append([]string(nil), d.order...)
}

// Len returns the number of definitions.
func (d *Definitions) Len() int {
	return len(d.order)
}

// Mangle replaces pattern definitions with one concrete definition per matching metric in
// metrics, placed where the pattern definition was. With dropMissing, only definitions of
// metrics are kept. Nothing is done when metrics is empty.
func (d *Definitions) Mangle(metrics []string, dropMissing bool) {
	if len(metrics) == 0 {
		return
	}
	var order []string
	defs := map[string]*Definition{}
	for _, name := range d.order {
		def := d.defs[name]
		if len(def.Patterns) == 0 {
			order = append(order, name)
			defs[name] = def
			continue
		}
		for _, metric := range metrics {
			if _, ok := d.defs[metric]; ok {
				continue
			}
			if _, ok := defs[metric]; ok {
				continue
			}
			if expanded := expandPattern(def, metric); expanded != nil {
				order = append(order, metric)
				defs[metric] = expanded
			}
		}
	}
	if dropMissing {
		keep := mapset.NewThreadUnsafeSet(metrics...)
		kept := order[:0]
		for _, name := range order {
			if keep.Contains(name) {
				kept = append(kept, name)
			} else {
				delete(defs, name)
			}
		}
		order = kept
	}
	d.order, d.defs = order, defs
}

func expandPattern(def *Definition, metric string) *Definition {
	for _, pattern := range def.Patterns {
		groups := regexp.MustCompile(pattern).FindStringSubmatch(metric)
		if groups == nil {
			continue
		}
		expanded := *def
		expanded.Name = metric
		expanded.Patterns = nil
		for idx, group := range groups[1:] {
			r := strings.NewReplacer(
				fmt.Sprintf("{GROUPS[%d]}", idx), strings.ToUpper(group),
				fmt.Sprintf("{groups[%d]}", idx), group)
			expanded.Title = r.Replace(expanded.Title)
			expanded.Descr = r.Replace(expanded.Descr)
		}
		return &expanded
	}
	return nil
}
