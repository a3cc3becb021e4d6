package sharing

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deltashare/deltashare/internal/delta"
)

// ReaderVersion is the minReaderVersion advertised to recipients.
const ReaderVersion = 1

const timestampLayout = "2006/01/02 15:04:05"

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ParseTimestamp accepts "YYYY/MM/DD HH:MM:SS" in UTC, or RFC 3339.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.ParseInLocation(timestampLayout, raw, time.UTC); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
}

type ProtocolLine struct {
	Protocol ProtocolDetail `json:"protocol"`
}

type ProtocolDetail struct {
	MinReaderVersion int `json:"minReaderVersion"`
}

type MetadataLine struct {
	MetaData MetadataDetail `json:"metaData"`
}

type FormatDetail struct {
	Provider string `json:"provider"`
}

type MetadataDetail struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           FormatDetail      `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
}

type FileLine struct {
	File FileDetail `json:"file"`
}

// FileDetail is one signed data file. Version and Timestamp are only set
// for time-traveled queries.
type FileDetail struct {
	URL                 string            `json:"url"`
	ID                  string            `json:"id"`
	PartitionValues     map[string]string `json:"partitionValues"`
	Size                int64             `json:"size"`
	Stats               string            `json:"stats,omitempty"`
	Version             *int64            `json:"version,omitempty"`
	Timestamp           *int64            `json:"timestamp,omitempty"`
	ExpirationTimestamp int64             `json:"expirationTimestamp"`
}

func protocolLine() ProtocolLine {
	return ProtocolLine{Protocol: ProtocolDetail{MinReaderVersion: ReaderVersion}}
}

func metadataLine(md delta.Metadata) MetadataLine {
	partitionColumns := md.PartitionColumns
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	configuration := md.Configuration
	if configuration == nil {
		configuration = map[string]string{}
	}
	provider := md.Format.Provider
	if provider == "" {
		provider = "parquet"
	}
	return MetadataLine{MetaData: MetadataDetail{
		ID:               md.ID,
		Name:             md.Name,
		Description:      md.Description,
		Format:           FormatDetail{Provider: provider},
		SchemaString:     md.SchemaString,
		PartitionColumns: partitionColumns,
		Configuration:    configuration,
	}}
}

// WriteLines encodes each line as one JSON document followed by a newline.
func WriteLines(w io.Writer, lines ...any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode line: %w", err)
		}
	}
	return nil
}
