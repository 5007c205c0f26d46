package dataframe

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"math"

	"github.com/casbin/govaluate"
	"github.com/pkg/errors"
)

// expressionFunctions can be called in column expressions
func expressionFunctions() map[string]govaluate.ExpressionFunction {
	toFloat := func(arg any) float64 {
		switch t := arg.(type) {
		case int:
			return float64(t)
		case float64:
			return t
		}
		return math.NaN()
	}
	return map[string]govaluate.ExpressionFunction{
		"max": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, errors.New("max takes two arguments")
			}
			return max(toFloat(args[0]), toFloat(args[1])), nil
		},
		"min": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, errors.New("min takes two arguments")
			}
			return min(toFloat(args[0]), toFloat(args[1])), nil
		},
		"abs": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, errors.New("abs takes one argument")
			}
			return math.Abs(toFloat(args[0])), nil
		},
	}
}

// Expression is a parsed column expression. Column names containing "-" or "%" are written in
// brackets, for example "[System-PkgWatt] / 2".
type Expression struct {
	text      string
	evaluable *govaluate.EvaluableExpression
}

// ParseExpression parses a column expression.
func ParseExpression(text string) (*Expression, error) {
	evaluable, err := govaluate.NewEvaluableExpressionWithFunctions(text, expressionFunctions())
	if err != nil {
		return nil, errors.Wrapf(err, "bad expression '%s'", text)
	}
	return &Expression{text: text, evaluable: evaluable}, nil
}

// Vars returns the column names the expression refers to.
func (e *Expression) Vars() []string {
	return e.evaluable.Vars()
}

func (e *Expression) String() string {
	return e.text
}

// evaluate catches panics that come from the evaluator
func (e *Expression) evaluate(variables map[string]any) (result float64, err error) {
	defer func() {
		if errx := recover(); errx != nil {
			err = fmt.Errorf("expression '%s' panicked: %v", e.text, errx)
		}
	}()
	value, err := e.evaluable.Evaluate(variables)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to evaluate '%s'", e.text)
	}
	switch t := value.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("expression '%s' returned a non-numeric value '%v'", e.text, value)
}

// AddExpressionColumn evaluates expr for every row and stores the result in column name. Rows
// where any referenced column is missing get NaN.
func (f *Frame) AddExpressionColumn(name string, expr *Expression) error {
	vars := expr.Vars()
	cols := make([][]float64, len(vars))
	for i, v := range vars {
		col, ok := f.Column(v)
		if !ok {
			return errors.Errorf("expression '%s' for column '%s' refers to unknown column '%s'", expr, name, v)
		}
		cols[i] = col
	}
	values := make([]float64, f.nrows)
	variables := make(map[string]any, len(vars))
	for row := range f.nrows {
		missing := false
		for i, v := range vars {
			val := cols[i][row]
			if math.IsNaN(val) {
				missing = true
				break
			}
			variables[v] = val
		}
		if missing {
			values[row] = math.NaN()
			continue
		}
		val, err := expr.evaluate(variables)
		if err != nil {
			return errors.Wrapf(err, "row %d of column '%s'", row, name)
		}
		values[row] = val
	}
	return f.SetColumn(name, values)
}
