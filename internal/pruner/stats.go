package pruner

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// FileStatistics is the per-file stats payload attached to a Delta add action.
// Min and max values are kept raw and decoded against the column type on use.
type FileStatistics struct {
	NumRecords int64
	MinValues  map[string]json.RawMessage
	MaxValues  map[string]json.RawMessage
	NullCount  map[string]int64
}

type rawStatistics struct {
	NumRecords *int64                     `json:"numRecords"`
	MinValues  map[string]json.RawMessage `json:"minValues"`
	MaxValues  map[string]json.RawMessage `json:"maxValues"`
	NullCount  map[string]json.RawMessage `json:"nullCount"`
}

// ParseStatistics decodes a stats JSON string. An empty string yields empty
// statistics, which evaluate to Unknown for every filter.
func ParseStatistics(raw string) (FileStatistics, error) {
	stats := FileStatistics{NumRecords: -1}
	if strings.TrimSpace(raw) == "" {
		return stats, nil
	}
	var decoded rawStatistics
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return stats, fmt.Errorf("decode file statistics: %w", err)
	}
	if decoded.NumRecords != nil {
		stats.NumRecords = *decoded.NumRecords
	}
	stats.MinValues = dropNulls(decoded.MinValues)
	stats.MaxValues = dropNulls(decoded.MaxValues)
	if len(decoded.NullCount) > 0 {
		stats.NullCount = make(map[string]int64, len(decoded.NullCount))
		for column, value := range decoded.NullCount {
			// Nested struct columns carry an object here; only top-level counts are usable.
			var count int64
			if err := json.Unmarshal(value, &count); err != nil {
				continue
			}
			stats.NullCount[column] = count
		}
	}
	return stats, nil
}

func dropNulls(values map[string]json.RawMessage) map[string]json.RawMessage {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(values))
	for column, value := range values {
		if len(value) == 0 || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		out[column] = value
	}
	return out
}
