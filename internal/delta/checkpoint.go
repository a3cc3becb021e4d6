package delta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/parquet-go/parquet-go"
)

// checkpointAction is one row of a Delta checkpoint file. Exactly one of the
// fields is set per row; transaction and commitInfo columns are not read.
// Remove rows in a checkpoint are vacuum tombstones and do not affect the
// live file set.
type checkpointAction struct {
	Add      *checkpointAdd      `parquet:"add,optional"`
	Remove   *checkpointRemove   `parquet:"remove,optional"`
	MetaData *checkpointMetadata `parquet:"metaData,optional"`
	Protocol *checkpointProtocol `parquet:"protocol,optional"`
}

type checkpointAdd struct {
	Path             string            `parquet:"path"`
	PartitionValues  map[string]string `parquet:"partitionValues"`
	Size             int64             `parquet:"size"`
	ModificationTime int64             `parquet:"modificationTime"`
	DataChange       bool              `parquet:"dataChange"`
	Stats            string            `parquet:"stats,optional"`
}

type checkpointRemove struct {
	Path              string `parquet:"path"`
	DeletionTimestamp int64  `parquet:"deletionTimestamp,optional"`
	DataChange        bool   `parquet:"dataChange"`
}

type checkpointFormat struct {
	Provider string            `parquet:"provider"`
	Options  map[string]string `parquet:"options"`
}

type checkpointMetadata struct {
	ID               string            `parquet:"id"`
	Name             string            `parquet:"name,optional"`
	Description      string            `parquet:"description,optional"`
	Format           checkpointFormat  `parquet:"format"`
	SchemaString     string            `parquet:"schemaString"`
	PartitionColumns []string          `parquet:"partitionColumns,list"`
	Configuration    map[string]string `parquet:"configuration"`
	CreatedTime      int64             `parquet:"createdTime,optional"`
}

type checkpointProtocol struct {
	MinReaderVersion int32 `parquet:"minReaderVersion"`
	MinWriterVersion int32 `parquet:"minWriterVersion"`
}

const checkpointBatchSize = 256

// readCheckpoint decodes one checkpoint part into the replay state.
func readCheckpoint(data []byte, version int64, st *replayState) (err error) {
	defer func() {
		// parquet-go panics on some schema mismatches instead of returning errors.
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: read checkpoint %d: %v", ErrCorruptLog, version, r)
		}
	}()

	reader := parquet.NewGenericReader[checkpointAction](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]checkpointAction, checkpointBatchSize)
	for {
		clear(rows)
		n, readErr := reader.Read(rows)
		for _, row := range rows[:n] {
			st.applyCheckpointRow(row)
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: read checkpoint %d: %v", ErrCorruptLog, version, readErr)
		}
	}
}

func (st *replayState) applyCheckpointRow(row checkpointAction) {
	switch {
	case row.Add != nil:
		st.add(FileEntry{
			Path:             row.Add.Path,
			PartitionValues:  maps.Clone(row.Add.PartitionValues),
			Size:             row.Add.Size,
			ModificationTime: row.Add.ModificationTime,
			Stats:            row.Add.Stats,
		})
	case row.MetaData != nil:
		md := Metadata{
			ID:               row.MetaData.ID,
			Name:             row.MetaData.Name,
			Description:      row.MetaData.Description,
			Format:           Format{Provider: row.MetaData.Format.Provider, Options: maps.Clone(row.MetaData.Format.Options)},
			SchemaString:     row.MetaData.SchemaString,
			PartitionColumns: append([]string(nil), row.MetaData.PartitionColumns...),
			Configuration:    maps.Clone(row.MetaData.Configuration),
		}
		if row.MetaData.CreatedTime != 0 {
			created := row.MetaData.CreatedTime
			md.CreatedTime = &created
		}
		st.metadata = &md
	case row.Protocol != nil:
		st.protocol = &Protocol{
			MinReaderVersion: int(row.Protocol.MinReaderVersion),
			MinWriterVersion: int(row.Protocol.MinWriterVersion),
		}
	}
}
