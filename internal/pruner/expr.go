package pruner

import (
	"github.com/deltashare/deltashare/internal/predicate"
)

// EvaluateExpr decides a JSON predicate tree against one file.
func EvaluateExpr(expr predicate.Expr, stats FileStatistics, types ColumnTypes) Decision {
	switch e := expr.(type) {
	case predicate.Leaf:
		columnType := types[e.Filter.Column]
		if e.ValueType != "" && ParseColumnType(e.ValueType) != columnType {
			return Unknown
		}
		return Evaluate(e.Filter, stats, columnType)
	case predicate.And:
		allKeep := len(e.Children) > 0
		for _, child := range e.Children {
			switch EvaluateExpr(child, stats, types) {
			case Discard:
				return Discard
			case Unknown:
				allKeep = false
			}
		}
		if allKeep {
			return Keep
		}
		return Unknown
	case predicate.Or:
		allDiscard := true
		for _, child := range e.Children {
			switch EvaluateExpr(child, stats, types) {
			case Keep:
				return Keep
			case Unknown:
				allDiscard = false
			}
		}
		if allDiscard && len(e.Children) > 0 {
			return Discard
		}
		return Unknown
	default:
		// Negating a may-match answer does not yield a must-not-match answer.
		return Unknown
	}
}

// Pruner evaluates a fixed set of filters against many files. It holds no
// mutable state and is safe for concurrent use.
type Pruner struct {
	types   ColumnTypes
	filters []predicate.PartitionFilter
	exprs   []predicate.Expr
}

func New(types ColumnTypes, filters []predicate.PartitionFilter, exprs ...predicate.Expr) *Pruner {
	kept := make([]predicate.Expr, 0, len(exprs))
	for _, expr := range exprs {
		if expr != nil {
			kept = append(kept, expr)
		}
	}
	return &Pruner{types: types, filters: filters, exprs: kept}
}

// Empty reports whether the pruner has nothing to evaluate.
func (p *Pruner) Empty() bool {
	return len(p.filters) == 0 && len(p.exprs) == 0
}

// Decide combines the per-filter decisions. A file is discarded only when at
// least one filter gave a definite answer and every definite answer is
// Discard.
func (p *Pruner) Decide(stats FileStatistics) Decision {
	definite := false
	for _, filter := range p.filters {
		switch Evaluate(filter, stats, p.types[filter.Column]) {
		case Keep:
			return Keep
		case Discard:
			definite = true
		}
	}
	for _, expr := range p.exprs {
		switch EvaluateExpr(expr, stats, p.types) {
		case Keep:
			return Keep
		case Discard:
			definite = true
		}
	}
	if definite {
		return Discard
	}
	return Unknown
}

// Keep reports whether the file must appear in the result.
func (p *Pruner) Keep(stats FileStatistics) bool {
	return p.Decide(stats) != Discard
}
