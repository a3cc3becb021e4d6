package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const (
	migrationTable = "deltashare_schema_migrations"

	// advisoryLockKey serialises runners across api replicas and the
	// migrate command.
	advisoryLockKey int64 = 0x64656c7461
)

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// ErrChecksumMismatch reports an applied migration whose up script changed
// after it ran.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

type Runner struct {
	fsys fs.FS
	// Logger receives one record per applied or rolled back migration.
	Logger *slog.Logger
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version  int64
	Name     string
	UpSQL    string
	DownSQL  string
	Checksum string
}

type appliedMigration struct {
	Version   int64
	Checksum  string
	AppliedAt time.Time
}

// Status describes one migration known to the source tree, the catalog
// database, or both.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Modified is set when the applied checksum differs from the source.
	Modified bool
	// Missing is set when the database records a version the source lacks.
	Missing bool
}

func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}

	runCount := 0
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationTable(ctx, conn); err != nil {
			return err
		}
		applied, err := listApplied(ctx, conn, "ASC")
		if err != nil {
			return err
		}
		appliedSet := make(map[int64]appliedMigration, len(applied))
		for _, item := range applied {
			appliedSet[item.Version] = item
		}

		for _, item := range migrations {
			if prior, ok := appliedSet[item.Version]; ok {
				if prior.Checksum != "" && prior.Checksum != item.Checksum {
					return fmt.Errorf("%w: version %d (%s)", ErrChecksumMismatch, item.Version, item.Name)
				}
				continue
			}
			if steps > 0 && runCount >= steps {
				break
			}
			if err := applyMigration(ctx, conn, item); err != nil {
				return err
			}
			r.log(ctx, "applied migration", item)
			runCount++
		}
		return nil
	})
	return runCount, err
}

func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}

	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	lookup := make(map[int64]migration, len(migrations))
	for _, item := range migrations {
		lookup[item.Version] = item
	}

	runCount := 0
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationTable(ctx, conn); err != nil {
			return err
		}
		applied, err := listApplied(ctx, conn, "DESC")
		if err != nil {
			return err
		}
		for _, prior := range applied {
			if runCount >= steps {
				break
			}
			item, ok := lookup[prior.Version]
			if !ok {
				return fmt.Errorf("applied migration %d is missing from source", prior.Version)
			}
			if err := rollbackMigration(ctx, conn, item); err != nil {
				return err
			}
			r.log(ctx, "rolled back migration", item)
			runCount++
		}
		return nil
	})
	return runCount, err
}

// Status merges the source migrations with the versions recorded in db,
// ordered by version.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return nil, err
	}
	applied, err := listApplied(ctx, conn, "ASC")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int64]*Status, len(migrations)+len(applied))
	for _, item := range migrations {
		byVersion[item.Version] = &Status{Version: item.Version, Name: item.Name}
	}
	checksums := make(map[int64]string, len(migrations))
	for _, item := range migrations {
		checksums[item.Version] = item.Checksum
	}
	for _, prior := range applied {
		status, ok := byVersion[prior.Version]
		if !ok {
			status = &Status{Version: prior.Version, Missing: true}
			byVersion[prior.Version] = status
		}
		status.Applied = true
		status.AppliedAt = prior.AppliedAt
		if sum, ok := checksums[prior.Version]; ok && prior.Checksum != "" && prior.Checksum != sum {
			status.Modified = true
		}
	}

	out := make([]Status, 0, len(byVersion))
	for _, status := range byVersion {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *Runner) log(ctx context.Context, msg string, item migration) {
	if r.Logger == nil {
		return
	}
	r.Logger.InfoContext(ctx, msg,
		slog.Int64("version", item.Version),
		slog.String("name", item.Name),
	)
}

// withLock runs fn on a dedicated connection holding the session-level
// advisory lock.
func withLock(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
	}()
	return fn(conn)
}

func ensureMigrationTable(ctx context.Context, conn *sql.Conn) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, item migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, item.UpSQL); err != nil {
		return fmt.Errorf("apply migration %d: %w", item.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, checksum) VALUES ($1, $2)`, item.Version, item.Checksum); err != nil {
		return fmt.Errorf("mark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", item.Version, err)
	}
	return nil
}

func rollbackMigration(ctx context.Context, conn *sql.Conn, item migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, item.DownSQL); err != nil {
		return fmt.Errorf("rollback migration %d: %w", item.Version, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE version = $1`, item.Version); err != nil {
		return fmt.Errorf("unmark migration %d: %w", item.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %d: %w", item.Version, err)
	}
	return nil
}

// listApplied returns applied migrations in the given order, ASC or DESC.
func listApplied(ctx context.Context, conn *sql.Conn, order string) ([]appliedMigration, error) {
	if order != "DESC" {
		order = "ASC"
	}
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum, applied_at FROM `+migrationTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var applied []appliedMigration
	for rows.Next() {
		var item appliedMigration
		if err := rows.Scan(&item.Version, &item.Checksum, &item.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return applied, nil
}

func checksum(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}

		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	migrations := make([]migration, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		item.Checksum = checksum(item.UpSQL)
		migrations = append(migrations, item)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
