// Package condition evaluates typed predicates over dotted field paths.
//
// It backs both processor filters in the stream pipeline and notification
// rule conditions, so the two agree on what "gt" or "contains" means.
package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Operator names a comparison.
type Operator string

// Supported operators.
const (
	Equals      Operator = "equals"
	NotEquals   Operator = "not_equals"
	GreaterThan Operator = "gt"
	GreaterOrEq Operator = "gte"
	LessThan    Operator = "lt"
	LessOrEq    Operator = "lte"
	Contains    Operator = "contains"
	NotContains Operator = "not_contains"
	In          Operator = "in"
	NotIn       Operator = "not_in"
	Regex       Operator = "regex"
)

var (
	// ErrUnknownOperator is returned for an operator outside the supported set.
	ErrUnknownOperator = errors.New("condition: unknown operator")

	// ErrInvalidOperand is returned when the expected value has the wrong shape
	// for the operator (e.g. "in" without a list, a bad regex).
	ErrInvalidOperand = errors.New("condition: invalid operand")
)

// Condition is one field/operator/value predicate.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case Equals, NotEquals, GreaterThan, GreaterOrEq, LessThan, LessOrEq,
		Contains, NotContains, In, NotIn, Regex:
		return true
	}
	return false
}

// negated operators hold when the field is absent.
func (op Operator) negated() bool {
	return op == NotEquals || op == NotContains || op == NotIn
}

// Match evaluates the condition against fields.
// A missing field fails every positive operator and satisfies the negated
// ones (not_equals, not_contains, not_in).
func (c Condition) Match(fields map[string]any) (bool, error) {
	if !c.Operator.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	actual, ok := Lookup(fields, c.Field)
	if !ok || actual == nil {
		return c.Operator.negated(), nil
	}
	return Evaluate(c.Operator, actual, c.Value)
}

// All reports whether every condition matches. An empty list matches.
func All(conds []Condition, fields map[string]any) (bool, error) {
	for _, c := range conds {
		ok, err := c.Match(fields)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate applies op to an actual and expected value.
func Evaluate(op Operator, actual, expected any) (bool, error) {
	switch op {
	case Equals:
		return equal(actual, expected), nil
	case NotEquals:
		return !equal(actual, expected), nil
	case GreaterThan, GreaterOrEq, LessThan, LessOrEq:
		return compare(op, actual, expected), nil
	case Contains:
		return contains(actual, expected), nil
	case NotContains:
		return !contains(actual, expected), nil
	case In:
		list, ok := asList(expected)
		if !ok {
			return false, fmt.Errorf("%w: %s needs a list", ErrInvalidOperand, op)
		}
		return inList(actual, list), nil
	case NotIn:
		list, ok := asList(expected)
		if !ok {
			return false, fmt.Errorf("%w: %s needs a list", ErrInvalidOperand, op)
		}
		return !inList(actual, list), nil
	case Regex:
		pattern, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("%w: regex needs a string pattern", ErrInvalidOperand)
		}
		re, err := compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidOperand, err)
		}
		s, ok := actual.(string)
		if !ok {
			s = fmt.Sprint(actual)
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// Lookup resolves a dotted path such as "data.voltage" or "metadata.site.id".
// A key containing dots is matched verbatim before the path is split.
func Lookup(fields map[string]any, path string) (any, bool) {
	if v, ok := fields[path]; ok {
		return v, true
	}

	var current any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equal(a, b any) bool {
	if af, ok := Number(a); ok {
		if bf, ok := Number(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(op Operator, a, b any) bool {
	af, aok := Number(a)
	bf, bok := Number(b)
	if !aok || !bok {
		as, aIsStr := a.(string)
		bs, bIsStr := b.(string)
		if !aIsStr || !bIsStr {
			return false
		}
		af, bf = float64(strings.Compare(as, bs)), 0
	}
	switch op {
	case GreaterThan:
		return af > bf
	case GreaterOrEq:
		return af >= bf
	case LessThan:
		return af < bf
	case LessOrEq:
		return af <= bf
	}
	return false
}

func contains(actual, expected any) bool {
	if s, ok := actual.(string); ok {
		sub, ok := expected.(string)
		return ok && strings.Contains(s, sub)
	}
	if list, ok := asList(actual); ok {
		return inList(expected, list)
	}
	return false
}

func inList(v any, list []any) bool {
	for _, e := range list {
		if equal(v, e) {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// Number converts the numeric shapes produced by JSON and YAML decoding.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var regexCache sync.Map

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}
