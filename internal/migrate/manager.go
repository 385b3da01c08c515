// Package migrate executes the console's SQL schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultMigrationsTable = "console_schema_migrations"

// Manager applies SQL migration files stored on disk. Files are ordered by
// name; applied files are recorded in the bookkeeping table and skipped on
// later runs.
type Manager struct {
	db    *sql.DB
	dir   string
	table string
}

// NewManager constructs a Manager over the given migrations directory.
func NewManager(db *sql.DB, dir string) *Manager {
	return &Manager{db: db, dir: dir, table: defaultMigrationsTable}
}

type migration struct {
	Base string
	Path string
}

// Up applies all pending .up.sql migrations.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.listApplied(ctx)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.dir, ".up.sql")
	if err != nil {
		return err
	}
	for _, mig := range files {
		if applied[mig.Base] {
			continue
		}
		if err := m.apply(ctx, mig, true); err != nil {
			return fmt.Errorf("apply %s: %w", mig.Base, err)
		}
	}
	return nil
}

// Down reverts the most recently applied migration using its .down.sql pair.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	var last string
	err := m.db.QueryRowContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at desc limit 1`, m.table),
	).Scan(&last)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	files, err := collectSQL(m.dir, ".down.sql")
	if err != nil {
		return err
	}
	for _, mig := range files {
		if mig.Base != last {
			continue
		}
		return m.apply(ctx, mig, false)
	}
	return fmt.Errorf("no down migration for %s", last)
}

// Status lists applied migrations with timestamps.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name, applied_at from %s order by applied_at`, m.table),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s\t%s", name, at.UTC().Format(time.RFC3339)))
	}
	return out, rows.Err()
}

func (m *Manager) apply(ctx context.Context, mig migration, up bool) error {
	script, err := os.ReadFile(mig.Path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if up {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, applied_at) values($1, now())`, m.table), mig.Base)
	} else {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`delete from %s where name = $1`, m.table), mig.Base)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)
	`, m.table))
	return err
}

func (m *Manager) listApplied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// collectSQL lists migration files with the given suffix, ordered by name.
// The bookkeeping key is the file name without the suffix, so an up/down
// pair shares one key.
func collectSQL(dir, suffix string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		files = append(files, migration{
			Base: strings.TrimSuffix(entry.Name(), suffix),
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}
