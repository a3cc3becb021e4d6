// Package predicate parses Delta Sharing predicate hints into typed filters.
//
// Values are kept as raw strings. Coercion into a column type happens at
// evaluation time, once the table schema is known.
package predicate

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrParse = errors.New("predicate: parse error")

type Op int

const (
	OpEqual Op = iota + 1
	OpNotEqual
	OpGreaterThan
	OpLessThan
	OpGreaterEqual
	OpLessEqual
	OpIsNull
	OpIsNotNull
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterEqual:
		return ">="
	case OpLessEqual:
		return "<="
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "Op(" + strconv.Itoa(int(o)) + ")"
	}
}

// HasValue reports whether predicates with this operator carry a value.
func (o Op) HasValue() bool {
	return o != OpIsNull && o != OpIsNotNull
}

// Flip mirrors a comparison so that `v op col` can be rewritten as `col op' v`.
func (o Op) Flip() Op {
	switch o {
	case OpGreaterThan:
		return OpLessThan
	case OpLessThan:
		return OpGreaterThan
	case OpGreaterEqual:
		return OpLessEqual
	case OpLessEqual:
		return OpGreaterEqual
	default:
		return o
	}
}

type Predicate struct {
	Op    Op
	Value string
}

type PartitionFilter struct {
	Column    string
	Predicate Predicate
}

func (f PartitionFilter) String() string {
	if !f.Predicate.Op.HasValue() {
		return fmt.Sprintf("%s %s", f.Column, f.Predicate.Op)
	}
	return fmt.Sprintf("%s %s %q", f.Column, f.Predicate.Op, f.Predicate.Value)
}

// HintError records a predicate hint that could not be parsed.
type HintError struct {
	Hint string
	Err  error
}

func (e HintError) Error() string {
	return fmt.Sprintf("predicate hint %q: %v", e.Hint, e.Err)
}

func (e HintError) Unwrap() error {
	return e.Err
}

// ParseHints parses every hint independently. Hints that fail to parse are
// reported in the second return value and left out of the filters.
func ParseHints(hints []string) ([]PartitionFilter, []HintError) {
	filters := make([]PartitionFilter, 0, len(hints))
	var failures []HintError
	for _, hint := range hints {
		filter, err := Parse(hint)
		if err != nil {
			failures = append(failures, HintError{Hint: hint, Err: err})
			continue
		}
		filters = append(filters, filter)
	}
	return filters, failures
}
