package predicate

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// JSONNode is the wire form of a jsonPredicateHints tree.
type JSONNode struct {
	Op        string     `json:"op"`
	Children  []JSONNode `json:"children,omitempty"`
	Name      string     `json:"name,omitempty"`
	Value     string     `json:"value,omitempty"`
	ValueType string     `json:"valueType,omitempty"`
}

// Expr is a parsed JSON predicate tree.
type Expr interface {
	isExpr()
}

type And struct {
	Children []Expr
}

type Or struct {
	Children []Expr
}

type Not struct {
	Child Expr
}

// Leaf is a single column comparison. ValueType is the type the client
// declared for the column, lowercased.
type Leaf struct {
	Filter    PartitionFilter
	ValueType string
}

func (And) isExpr()  {}
func (Or) isExpr()   {}
func (Not) isExpr()  {}
func (Leaf) isExpr() {}

var comparisonOps = map[string]Op{
	"equal":              OpEqual,
	"lessthan":           OpLessThan,
	"lessthanorequal":    OpLessEqual,
	"greaterthan":        OpGreaterThan,
	"greaterthanorequal": OpGreaterEqual,
}

var valueTypes = map[string]struct{}{
	"boolean": {},
	"int":     {},
	"long":    {},
	"string":  {},
	"date":    {},
}

// DecodeJSONHint decodes jsonPredicateHints. The protocol sends the tree as a
// JSON-encoded string; a bare object is accepted as well.
func DecodeJSONHint(raw []byte) (Expr, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: decode json predicate string: %v", ErrParse, err)
		}
		raw = []byte(inner)
	}
	var node JSONNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("%w: decode json predicate: %v", ErrParse, err)
	}
	return ParseJSON(node)
}

func ParseJSON(node JSONNode) (Expr, error) {
	op := strings.ToLower(strings.TrimSpace(node.Op))
	switch op {
	case "and", "or":
		if len(node.Children) < 2 {
			return nil, fmt.Errorf("%w: %s requires at least two children", ErrParse, op)
		}
		children := make([]Expr, 0, len(node.Children))
		for _, child := range node.Children {
			expr, err := ParseJSON(child)
			if err != nil {
				return nil, err
			}
			children = append(children, expr)
		}
		if op == "and" {
			return And{Children: children}, nil
		}
		return Or{Children: children}, nil
	case "not":
		if len(node.Children) != 1 {
			return nil, fmt.Errorf("%w: not requires exactly one child", ErrParse)
		}
		child, err := ParseJSON(node.Children[0])
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case "isnull":
		if len(node.Children) != 1 {
			return nil, fmt.Errorf("%w: isNull requires exactly one child", ErrParse)
		}
		column, valueType, err := columnOf(node.Children[0])
		if err != nil {
			return nil, err
		}
		return Leaf{
			Filter:    PartitionFilter{Column: column, Predicate: Predicate{Op: OpIsNull}},
			ValueType: valueType,
		}, nil
	case "column", "literal":
		return nil, fmt.Errorf("%w: %s cannot be used as a predicate", ErrParse, op)
	}

	cmpOp, ok := comparisonOps[op]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported op %q", ErrParse, node.Op)
	}
	if len(node.Children) != 2 {
		return nil, fmt.Errorf("%w: %s requires exactly two children", ErrParse, node.Op)
	}

	left, right := node.Children[0], node.Children[1]
	if strings.EqualFold(left.Op, "literal") && strings.EqualFold(right.Op, "column") {
		left, right = right, left
		cmpOp = cmpOp.Flip()
	}
	column, columnType, err := columnOf(left)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(right.Op, "literal") {
		return nil, fmt.Errorf("%w: %s requires a literal operand", ErrParse, node.Op)
	}
	literalType := strings.ToLower(strings.TrimSpace(right.ValueType))
	if literalType != columnType {
		return nil, fmt.Errorf("%w: %s compares %s column with %s literal", ErrParse, node.Op, columnType, literalType)
	}
	return Leaf{
		Filter:    PartitionFilter{Column: column, Predicate: Predicate{Op: cmpOp, Value: right.Value}},
		ValueType: columnType,
	}, nil
}

func columnOf(node JSONNode) (string, string, error) {
	if !strings.EqualFold(node.Op, "column") {
		return "", "", fmt.Errorf("%w: expected column operand, got %q", ErrParse, node.Op)
	}
	if strings.TrimSpace(node.Name) == "" {
		return "", "", fmt.Errorf("%w: column operand requires a name", ErrParse)
	}
	valueType := strings.ToLower(strings.TrimSpace(node.ValueType))
	if _, ok := valueTypes[valueType]; !ok {
		return "", "", fmt.Errorf("%w: unsupported value type %q", ErrParse, node.ValueType)
	}
	return node.Name, valueType, nil
}
