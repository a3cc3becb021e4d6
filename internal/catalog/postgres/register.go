package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/deltashare/deltashare/internal/catalog"
)

func (r *Repository) RegisterTable(ctx context.Context, in catalog.RegisterTableInput) (catalog.Table, error) {
	if strings.TrimSpace(in.Share) == "" || strings.TrimSpace(in.Schema) == "" || strings.TrimSpace(in.Table) == "" {
		return catalog.Table{}, fmt.Errorf("share, schema and table names are required")
	}
	if strings.TrimSpace(in.Location) == "" {
		return catalog.Table{}, fmt.Errorf("table location is required")
	}
	if in.CreatedBy == "" {
		in.CreatedBy = "deltashare-admin"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Table{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var shareID string
	if err := tx.QueryRowContext(ctx, `
INSERT INTO share (name, created_by)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text`, in.Share, in.CreatedBy).Scan(&shareID); err != nil {
		return catalog.Table{}, fmt.Errorf("upsert share: %w", err)
	}

	var schemaID string
	if err := tx.QueryRowContext(ctx, `
INSERT INTO "schema" (name, share_id)
VALUES ($1, $2::uuid)
ON CONFLICT (share_id, name) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text`, in.Schema, shareID).Scan(&schemaID); err != nil {
		return catalog.Table{}, fmt.Errorf("upsert schema: %w", err)
	}

	table := catalog.Table{
		Name:     in.Table,
		Schema:   in.Schema,
		Share:    in.Share,
		ShareID:  shareID,
		Location: in.Location,
	}
	if err := tx.QueryRowContext(ctx, `
INSERT INTO "table" (name, schema_id, location)
VALUES ($1, $2::uuid, $3)
RETURNING id::text, created_at`, in.Table, schemaID, in.Location).Scan(&table.ID, &table.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.Table{}, fmt.Errorf("%w: table %s.%s.%s", catalog.ErrAlreadyExists, in.Share, in.Schema, in.Table)
		}
		return catalog.Table{}, fmt.Errorf("insert table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return catalog.Table{}, fmt.Errorf("commit register tx: %w", err)
	}
	return table, nil
}
