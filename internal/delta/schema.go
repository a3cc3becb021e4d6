package delta

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Schema is the top-level struct type of a Delta schemaString.
type Schema struct {
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

type Field struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// TypeName returns the primitive type name, or the kind ("struct", "array",
// "map") for nested types.
func (f Field) TypeName() string {
	raw := bytes.TrimSpace(f.Type)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			return name
		}
		return ""
	}
	var nested struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}
	return nested.Type
}

func ParseSchema(schemaString string) (Schema, error) {
	var schema Schema
	if err := json.Unmarshal([]byte(schemaString), &schema); err != nil {
		return Schema{}, fmt.Errorf("%w: decode schema: %v", ErrCorruptLog, err)
	}
	if schema.Type != "struct" {
		return Schema{}, fmt.Errorf("%w: schema type %q is not struct", ErrCorruptLog, schema.Type)
	}
	return schema, nil
}

// ColumnTypeNames maps every top-level column to its type name.
func (s Schema) ColumnTypeNames() map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, field := range s.Fields {
		out[field.Name] = field.TypeName()
	}
	return out
}
