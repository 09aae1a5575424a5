package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"taskrank/internal/logging"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Step is one embedded schema change, named NNN_description.sql.
type Step struct {
	Version int
	Name    string
	SQL     string
}

func steps(fsys fs.FS) ([]Step, error) {
	names, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	seen := map[int]string{}
	out := make([]Step, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		prefix, _, ok := strings.Cut(base, "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", base)
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, base, v)
		}
		seen[v] = base
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Step{Version: v, Name: base, SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate brings the schema up to date. All pending steps run in one
// transaction, so a failing step leaves the previous version in place.
func Migrate(db *sql.DB) error {
	return Up(context.Background(), db)
}

// Up is Migrate with a context.
func Up(ctx context.Context, db *sql.DB) error {
	all, err := steps(migrationsFS)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	current, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current < 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		current = 0
	}

	for _, s := range all {
		if s.Version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.SQL); err != nil {
			return fmt.Errorf("migration %s: %w", s.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version=?`, s.Version); err != nil {
			return fmt.Errorf("record %s: %w", s.Name, err)
		}
		logging.Get().WithField("migration", s.Name).Debug("applied migration")
		current = s.Version
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readVersion returns -1 when schema_version has no row yet.
func readVersion(ctx context.Context, q queryer) (int, error) {
	var v int
	err := q.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

// Version reports the applied schema version, 0 for a fresh database.
func Version(db *sql.DB) (int, error) {
	ctx := context.Background()
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}
	v, err := readVersion(ctx, db)
	if err != nil || v < 0 {
		return 0, err
	}
	return v, nil
}

// Pending lists the embedded steps newer than the database.
func Pending(db *sql.DB) ([]Step, error) {
	v, err := Version(db)
	if err != nil {
		return nil, err
	}
	all, err := steps(migrationsFS)
	if err != nil {
		return nil, err
	}
	var out []Step
	for _, s := range all {
		if s.Version > v {
			out = append(out, s)
		}
	}
	return out, nil
}
