package storage

import (
	"context"
	"database/sql"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// applyMigrations runs every embedded .sql file for the dialect at most once,
// in file name order. Statements are separated by a semicolon at line end.
func applyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, dialect Dialect) error {
	root := string(dialect)
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return errors.Wrap(err, "read migrations dir")
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, dialect.migrationTableDDL()); err != nil {
		return errors.Wrap(err, "ensure migration table")
	}

	for _, name := range files {
		var applied int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied)
		if err != nil {
			return errors.Wrapf(err, "check migration %s", name)
		}
		if applied > 0 {
			continue
		}

		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}

		// MySQL commits DDL implicitly, so statements run one by one and the
		// bookkeeping row is written last; every statement is idempotent.
		for _, stmt := range splitStatements(string(content)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "apply migration %s", name)
			}
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().UnixMilli(),
		); err != nil {
			return errors.Wrapf(err, "record migration %s", name)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			out = append(out, stmt)
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (d Dialect) migrationTableDDL() string {
	if d == DialectMySQL {
		return `CREATE TABLE IF NOT EXISTS schema_migrations (
    name VARCHAR(255) NOT NULL PRIMARY KEY,
    applied_at BIGINT NOT NULL
) ENGINE = InnoDB`
	}
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`
}
