// Package catalog holds the sharing catalog: recipient accounts and the
// shares, schemas and tables exposed to them.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
)

// Repository is the catalog read side plus the admin writes. Every List
// method returns at most limit rows ordered by name, starting at after
// (inclusive) when after is set. ListAllTables orders by name then schema and
// takes an AllTablesCursor as after.
type Repository interface {
	HealthCheck(ctx context.Context) error

	ListShares(ctx context.Context, limit int, after *string) ([]Share, error)
	GetShare(ctx context.Context, name string) (Share, error)
	ListSchemas(ctx context.Context, share string, limit int, after *string) ([]Schema, error)
	ListTables(ctx context.Context, share, schema string, limit int, after *string) ([]Table, error)
	ListAllTables(ctx context.Context, share string, limit int, after *string) ([]Table, error)
	GetTable(ctx context.Context, share, schema, table string) (Table, error)

	ListAccounts(ctx context.Context, limit int, after *string) ([]Account, error)
	GetAccount(ctx context.Context, name string) (Account, error)
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	RegisterTable(ctx context.Context, in RegisterTableInput) (Table, error)
}

// allTablesCursorSep cannot occur in Postgres text, so it never appears in a
// name.
const allTablesCursorSep = "\x00"

// AllTablesCursor keys a table within a share. Table names repeat across
// schemas, so the schema breaks ties.
func AllTablesCursor(t Table) string {
	return t.Name + allTablesCursorSep + t.Schema
}

// SplitAllTablesCursor reverses AllTablesCursor. A bare table name yields an
// empty schema, which sorts before every schema of that name.
func SplitAllTablesCursor(cursor string) (name, schema string) {
	name, schema, _ = strings.Cut(cursor, allTablesCursorSep)
	return name, schema
}

type Share struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type Schema struct {
	ID        string
	Name      string
	Share     string
	CreatedAt time.Time
}

// Table is a shared Delta table. Location is the table root URI.
type Table struct {
	ID        string
	Name      string
	Schema    string
	Share     string
	ShareID   string
	Location  string
	CreatedAt time.Time
}

type Account struct {
	ID        string
	Name      string
	Email     string
	Namespace string
	// TTLSeconds bounds the lifetime of tokens issued to the account.
	TTLSeconds int64
	CreatedAt  time.Time
}

type CreateAccountInput struct {
	Name       string
	Email      string
	Namespace  string
	TTLSeconds int64
}

// RegisterTableInput creates the share and schema when missing and adds the
// table beneath them.
type RegisterTableInput struct {
	Share     string
	Schema    string
	Table     string
	Location  string
	CreatedBy string
}
