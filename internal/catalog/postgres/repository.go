package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deltashare/deltashare/internal/catalog"
)

const uniqueViolation = "23505"

var _ catalog.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) ListShares(ctx context.Context, limit int, after *string) ([]catalog.Share, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id::text, name, created_by, created_at
FROM share
WHERE ($1::text IS NULL OR name >= $1)
ORDER BY name ASC
LIMIT $2`, cursorArg(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer func() { _ = rows.Close() }()

	shares := make([]catalog.Share, 0)
	for rows.Next() {
		var share catalog.Share
		if err := rows.Scan(&share.ID, &share.Name, &share.CreatedBy, &share.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share row: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share rows: %w", err)
	}
	return shares, nil
}

func (r *Repository) GetShare(ctx context.Context, name string) (catalog.Share, error) {
	var share catalog.Share
	if err := r.db.QueryRowContext(ctx, `
SELECT id::text, name, created_by, created_at
FROM share
WHERE name = $1`, name).Scan(&share.ID, &share.Name, &share.CreatedBy, &share.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Share{}, catalog.ErrNotFound
		}
		return catalog.Share{}, fmt.Errorf("get share: %w", err)
	}
	return share, nil
}

func (r *Repository) ListSchemas(ctx context.Context, share string, limit int, after *string) ([]catalog.Schema, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT "schema".id::text, "schema".name, share.name, "schema".created_at
FROM "schema"
JOIN share ON share.id = "schema".share_id
WHERE share.name = $1 AND ($2::text IS NULL OR "schema".name >= $2)
ORDER BY "schema".name ASC
LIMIT $3`, share, cursorArg(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schemas := make([]catalog.Schema, 0)
	for rows.Next() {
		var schema catalog.Schema
		if err := rows.Scan(&schema.ID, &schema.Name, &schema.Share, &schema.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		schemas = append(schemas, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	return schemas, nil
}

const tableColumns = `"table".id::text, "table".name, "schema".name, share.name, share.id::text, "table".location, "table".created_at`

func (r *Repository) ListTables(ctx context.Context, share, schema string, limit int, after *string) ([]catalog.Table, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+tableColumns+`
FROM "table"
JOIN "schema" ON "schema".id = "table".schema_id
JOIN share ON share.id = "schema".share_id
WHERE share.name = $1 AND "schema".name = $2 AND ($3::text IS NULL OR "table".name >= $3)
ORDER BY "table".name ASC
LIMIT $4`, share, schema, cursorArg(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return scanTables(rows)
}

// ListAllTables lists the tables of every schema in a share ordered by name
// then schema. after is a catalog.AllTablesCursor.
func (r *Repository) ListAllTables(ctx context.Context, share string, limit int, after *string) ([]catalog.Table, error) {
	var afterName, afterSchema any
	if after != nil {
		name, schema := catalog.SplitAllTablesCursor(*after)
		afterName, afterSchema = name, schema
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+tableColumns+`
FROM "table"
JOIN "schema" ON "schema".id = "table".schema_id
JOIN share ON share.id = "schema".share_id
WHERE share.name = $1 AND ($2::text IS NULL OR ("table".name, "schema".name) >= ($2::text, $3::text))
ORDER BY "table".name ASC, "schema".name ASC
LIMIT $4`, share, afterName, afterSchema, limit)
	if err != nil {
		return nil, fmt.Errorf("list all tables: %w", err)
	}
	return scanTables(rows)
}

func (r *Repository) GetTable(ctx context.Context, share, schema, table string) (catalog.Table, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+tableColumns+`
FROM "table"
JOIN "schema" ON "schema".id = "table".schema_id
JOIN share ON share.id = "schema".share_id
WHERE share.name = $1 AND "schema".name = $2 AND "table".name = $3`, share, schema, table)

	var out catalog.Table
	if err := row.Scan(&out.ID, &out.Name, &out.Schema, &out.Share, &out.ShareID, &out.Location, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Table{}, catalog.ErrNotFound
		}
		return catalog.Table{}, fmt.Errorf("get table: %w", err)
	}
	return out, nil
}

func (r *Repository) ListAccounts(ctx context.Context, limit int, after *string) ([]catalog.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id::text, name, email, namespace, ttl, created_at
FROM account
WHERE ($1::text IS NULL OR name >= $1)
ORDER BY name ASC
LIMIT $2`, cursorArg(after), limit)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	accounts := make([]catalog.Account, 0)
	for rows.Next() {
		var account catalog.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Email, &account.Namespace, &account.TTLSeconds, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

func (r *Repository) GetAccount(ctx context.Context, name string) (catalog.Account, error) {
	var account catalog.Account
	if err := r.db.QueryRowContext(ctx, `
SELECT id::text, name, email, namespace, ttl, created_at
FROM account
WHERE name = $1`, name).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.Namespace,
		&account.TTLSeconds,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Account{}, catalog.ErrNotFound
		}
		return catalog.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *Repository) CreateAccount(ctx context.Context, in catalog.CreateAccountInput) (catalog.Account, error) {
	account := catalog.Account{
		Name:       in.Name,
		Email:      in.Email,
		Namespace:  in.Namespace,
		TTLSeconds: in.TTLSeconds,
	}
	if err := r.db.QueryRowContext(ctx, `
INSERT INTO account (name, email, namespace, ttl)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at`, in.Name, in.Email, in.Namespace, in.TTLSeconds).Scan(&account.ID, &account.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.Account{}, fmt.Errorf("%w: account %q", catalog.ErrAlreadyExists, in.Name)
		}
		return catalog.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func scanTables(rows *sql.Rows) ([]catalog.Table, error) {
	defer func() { _ = rows.Close() }()

	tables := make([]catalog.Table, 0)
	for rows.Next() {
		var table catalog.Table
		if err := rows.Scan(
			&table.ID,
			&table.Name,
			&table.Schema,
			&table.Share,
			&table.ShareID,
			&table.Location,
			&table.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func cursorArg(after *string) any {
	if after == nil {
		return nil
	}
	return *after
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
