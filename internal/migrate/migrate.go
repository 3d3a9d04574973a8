package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultHistoryTable = "schema_history"

// Step kinds recorded in the history table.
const (
	kindMigration = "migration"
	kindSeed      = "seed"
)

// AppliedStep is one row of the schema history.
type AppliedStep struct {
	Name      string
	Kind      string
	Checksum  string
	AppliedAt time.Time
}

// Runner applies SQL migration and seed files against a database. Every file
// is recorded in a single history table with a checksum, so a migration that
// was edited after being applied is reported instead of silently ignored.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
	historyTable  string
}

// Option configures Runner.
type Option func(*Runner)

// WithHistoryTable overrides the bookkeeping table name.
func WithHistoryTable(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.historyTable = name
		}
	}
}

// NewRunner constructs a Runner over on-disk SQL directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Runner {
	r := &Runner{
		db:            db,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
		historyTable:  defaultHistoryTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Up applies all pending migrations in name order. A migration without a
// matching .down.sql is rejected before anything runs.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	files, err := collectSQL(r.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, f := range files {
		downPath := strings.TrimSuffix(f.Path, ".up.sql") + ".down.sql"
		if _, err := os.Stat(downPath); err != nil {
			return fmt.Errorf("migration %s has no down script", f.Base)
		}
	}
	applied, err := r.appliedByName(ctx, kindMigration)
	if err != nil {
		return err
	}
	for _, f := range files {
		if prev, ok := applied[f.Base]; ok {
			if prev.Checksum != f.Checksum {
				return fmt.Errorf("migration %s changed after being applied", f.Base)
			}
			continue
		}
		if err := r.execFile(ctx, f.Path); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Base, err)
		}
		if err := r.record(ctx, f.Base, kindMigration, f.Checksum); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	history, err := r.Status(ctx)
	if err != nil {
		return err
	}
	var last *AppliedStep
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == kindMigration {
			last = &history[i]
			break
		}
	}
	if last == nil {
		return errors.New("no migrations applied")
	}
	downPath := strings.TrimSuffix(filepath.Join(r.migrationsDir, last.Name), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last.Name)
	}
	if err := r.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last.Name, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1 and kind = $2`, r.historyTable),
		last.Name, kindMigration)
	return err
}

// Seed applies seed files once each, in name order.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureHistory(ctx); err != nil {
		return err
	}
	files, err := collectSQL(r.seedsDir, ".sql")
	if err != nil {
		return err
	}
	applied, err := r.appliedByName(ctx, kindSeed)
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, ok := applied[f.Base]; ok {
			continue
		}
		if err := r.execFile(ctx, f.Path); err != nil {
			return fmt.Errorf("apply seed %s: %w", f.Base, err)
		}
		if err := r.record(ctx, f.Base, kindSeed, f.Checksum); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the history in application order.
func (r *Runner) Status(ctx context.Context) ([]AppliedStep, error) {
	if err := r.ensureHistory(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name, kind, checksum, applied_at from %s order by applied_at asc, name asc`, r.historyTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AppliedStep
	for rows.Next() {
		var step AppliedStep
		if err := rows.Scan(&step.Name, &step.Kind, &step.Checksum, &step.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, step)
	}
	return out, rows.Err()
}

func (r *Runner) ensureHistory(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		create table if not exists %s (
			name text not null,
			kind text not null,
			checksum text not null,
			applied_at timestamptz not null default now(),
			primary key (name, kind)
		);`, r.historyTable)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, name, kind, checksum string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, kind, checksum, applied_at) values ($1, $2, $3, $4)`, r.historyTable),
		name, kind, checksum, time.Now().UTC())
	return err
}

func (r *Runner) appliedByName(ctx context.Context, kind string) (map[string]AppliedStep, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name, kind, checksum, applied_at from %s where kind = $1`, r.historyTable), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]AppliedStep)
	for rows.Next() {
		var step AppliedStep
		if err := rows.Scan(&step.Name, &step.Kind, &step.Checksum, &step.AppliedAt); err != nil {
			return nil, err
		}
		out[step.Name] = step
	}
	return out, rows.Err()
}

type sqlFile struct {
	Base     string
	Path     string
	Checksum string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(raw)
		files = append(files, sqlFile{
			Base:     d.Name(),
			Path:     path,
			Checksum: hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Good
// enough for DDL and plain inserts; functions with dollar quoting belong in
// their own single-statement file.
func splitStatements(script string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range script {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
