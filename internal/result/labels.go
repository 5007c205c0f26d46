package result

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"statscollect/internal/dfbuilders"
	"statscollect/internal/parsers"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

var allowedLabelKeys = mapset.NewThreadUnsafeSet("name", "ts", "metrics")

// LoadLabels reads a labels file: one JSON object per line with the "name", "ts" and
// optional "metrics" keys. Lines starting with '#' are comments.
func LoadLabels(path string) ([]dfbuilders.Label, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open labels file '%s'", path)
	}
	defer file.Close()

	var labels []dfbuilders.Label
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		label, err := parseLabel(line)
		if err != nil {
			return nil, &parsers.FormatError{Path: path, Line: lineNum, Offset: -1,
				Msg: fmt.Sprintf("%s, the bad line is: %s", err, strings.TrimSpace(line))}
		}
		if n := len(labels); n > 0 && label.TS < labels[n-1].TS {
			return nil, &parsers.FormatError{Path: path, Line: lineNum, Offset: -1,
				Msg: fmt.Sprintf("label time-stamp %g is smaller than the previous label's time-stamp %g",
					label.TS, labels[n-1].TS)}
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read labels file '%s'", path)
	}
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file '%s' does not contain any labels", path)
	}
	return labels, nil
}

func parseLabel(line string) (dfbuilders.Label, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return dfbuilders.Label{}, errors.Wrap(err, "failed to parse JSON")
	}
	for key := range raw {
		if !allowedLabelKeys.Contains(key) {
			allowed := allowedLabelKeys.ToSlice()
			slices.Sort(allowed)
			return dfbuilders.Label{}, errors.Errorf("label key '%s' is not allowed, the allowed keys are: %s",
				key, strings.Join(allowed, ", "))
		}
	}
	for _, key := range []string{"name", "ts"} {
		if _, ok := raw[key]; !ok {
			return dfbuilders.Label{}, errors.Errorf("label does not contain a '%s' key", key)
		}
	}

	var label dfbuilders.Label
	if err := json.Unmarshal(raw["name"], &label.Name); err != nil {
		return label, errors.New("label name is not a string")
	}
	if label.Name != dfbuilders.LabelStart && label.Name != dfbuilders.LabelSkip {
		return label, errors.Errorf("unsupported label name '%s', the supported names are: %s, %s",
			label.Name, dfbuilders.LabelStart, dfbuilders.LabelSkip)
	}
	if err := json.Unmarshal(raw["ts"], &label.TS); err != nil {
		return label, errors.New("label time-stamp is not an integer or a float")
	}
	metrics, ok := raw["metrics"]
	if !ok || label.Name == dfbuilders.LabelSkip {
		return label, nil
	}
	var values map[string]json.Number
	if err := json.Unmarshal(metrics, &values); err != nil {
		return label, errors.New("label metrics must be an object with numeric values")
	}
	label.Metrics = make(map[string]float64, len(values))
	for metric, value := range values {
		f, err := value.Float64()
		if err != nil {
			return label, errors.Errorf("metric '%s' value is not a number", metric)
		}
		label.Metrics[metric] = f
	}
	return label, nil
}
