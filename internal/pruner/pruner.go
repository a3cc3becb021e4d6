// Package pruner decides whether a data file can be skipped for a set of
// predicate hints, using only the file's min/max/null-count statistics.
//
// Every decision is conservative: a file is only discarded when its
// statistics prove that no row can satisfy the predicate.
package pruner

import (
	"cmp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/predicate"
)

type ColumnType int

const (
	TypeUnknown ColumnType = iota
	TypeBoolean
	TypeInt
	TypeLong
	TypeString
	TypeDate
)

func (t ColumnType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	default:
		return "unknown"
	}
}

// ParseColumnType maps a Delta primitive type name to a ColumnType. Types the
// pruner cannot compare map to TypeUnknown.
func ParseColumnType(name string) ColumnType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "boolean":
		return TypeBoolean
	case "int", "integer", "short", "byte":
		return TypeInt
	case "long":
		return TypeLong
	case "string":
		return TypeString
	case "date":
		return TypeDate
	default:
		return TypeUnknown
	}
}

// ColumnTypes holds the declared type of every column in a table schema.
type ColumnTypes map[string]ColumnType

type Decision int

const (
	Unknown Decision = iota
	Keep
	Discard
)

func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Evaluate decides a single filter against one file's statistics.
func Evaluate(filter predicate.PartitionFilter, stats FileStatistics, columnType ColumnType) Decision {
	switch filter.Predicate.Op {
	case predicate.OpIsNull:
		count, ok := stats.NullCount[filter.Column]
		if !ok {
			return Unknown
		}
		if count > 0 {
			return Keep
		}
		return Discard
	case predicate.OpIsNotNull:
		count, ok := stats.NullCount[filter.Column]
		if !ok {
			return Unknown
		}
		if stats.NumRecords > 0 && count == stats.NumRecords {
			return Discard
		}
		return Keep
	case predicate.OpNotEqual:
		return Keep
	}

	minRaw, okMin := stats.MinValues[filter.Column]
	maxRaw, okMax := stats.MaxValues[filter.Column]
	if !okMin || !okMax {
		return Unknown
	}

	op, value := filter.Predicate.Op, filter.Predicate.Value
	switch columnType {
	case TypeBoolean:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return Unknown
		}
		lo, okLo := decodeBool(minRaw)
		hi, okHi := decodeBool(maxRaw)
		if !okLo || !okHi {
			return Unknown
		}
		return interval(op, cmp.Compare(boolRank(lo), boolRank(v)), cmp.Compare(boolRank(v), boolRank(hi)))
	case TypeInt, TypeLong:
		v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return Unknown
		}
		lo, okLo := decodeInt(minRaw)
		hi, okHi := decodeInt(maxRaw)
		if !okLo || !okHi {
			return Unknown
		}
		return interval(op, cmp.Compare(lo, v), cmp.Compare(v, hi))
	case TypeString, TypeDate:
		lo, okLo := decodeString(minRaw)
		hi, okHi := decodeString(maxRaw)
		if !okLo || !okHi {
			return Unknown
		}
		return interval(op, cmp.Compare(lo, value), cmp.Compare(value, hi))
	default:
		return Unknown
	}
}

// interval applies the range rule for op given lo = cmp(min, v) and
// hi = cmp(v, max).
func interval(op predicate.Op, lo, hi int) Decision {
	var match bool
	switch op {
	case predicate.OpEqual:
		match = lo <= 0 && hi <= 0
	case predicate.OpGreaterThan:
		match = hi < 0
	case predicate.OpLessThan:
		match = lo < 0
	case predicate.OpGreaterEqual:
		match = hi <= 0
	case predicate.OpLessEqual:
		match = lo <= 0
	default:
		return Unknown
	}
	if match {
		return Keep
	}
	return Discard
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

func decodeInt(raw json.RawMessage) (int64, bool) {
	text := strings.TrimSpace(string(raw))
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, true
	}
	// Some writers emit integral stats as quoted strings.
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
