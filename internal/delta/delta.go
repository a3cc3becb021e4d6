// Package delta reads immutable snapshots of Delta tables from object storage.
package delta

import (
	"context"
	"errors"
	"time"

	"github.com/deltashare/deltashare/internal/storage"
)

var (
	ErrTableNotFound   = errors.New("delta table not found")
	ErrVersionNotFound = errors.New("delta table version not found")
	ErrCorruptLog      = errors.New("delta log is corrupt")
)

// TableStore opens Delta tables by location URI.
type TableStore interface {
	Open(ctx context.Context, location string) (Table, error)
}

// Table resolves snapshots of one table. Every call reads the log again; the
// returned snapshot is never mutated afterwards.
type Table interface {
	Latest(ctx context.Context) (*Snapshot, error)
	AtVersion(ctx context.Context, version int64) (*Snapshot, error)
	// AtTimestamp resolves the latest version committed at or before ts.
	AtTimestamp(ctx context.Context, ts time.Time) (*Snapshot, error)
}

type Snapshot struct {
	Location  storage.Location
	Version   int64
	Timestamp time.Time
	Protocol  Protocol
	Metadata  Metadata
	Schema    Schema
	// Files is sorted by Path.
	Files []FileEntry
}

func (s *Snapshot) PartitionColumns() []string {
	return s.Metadata.PartitionColumns
}

// FileEntry is a live data file. Version and Timestamp identify the commit
// that added it.
type FileEntry struct {
	Path             string
	PartitionValues  map[string]string
	Size             int64
	ModificationTime int64
	Stats            string
	Version          int64
	Timestamp        time.Time
}

type Protocol struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures,omitempty"`
	WriterFeatures   []string `json:"writerFeatures,omitempty"`
}

type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

type Metadata struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}
