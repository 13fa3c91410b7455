package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rl1809/market-core/internal/adapter/storage/migrations"
	"github.com/rl1809/market-core/internal/port"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore implements port.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Open connects to the store, applies the embedded schema and returns a
// ready store. For SQLite, dsn is a file path; an empty path means
// ./market.db. In-memory databases are refused because every pooled
// connection would see its own empty copy.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*SQLStore, error) {
	driver, source := string(dialect), dsn
	if dialect == DialectSQLite {
		var err error
		if source, err = sqliteDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dialect)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", dialect)
	}
	if err := applyMigrations(ctx, db, migrations.FS, dialect); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return NewSQLStore(db, dialect), nil
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return "", errors.Errorf("sqlite store needs a file path, got %q", path)
	}
	if path == "" {
		path = filepath.Join(".", "market.db")
	}
	return "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate", nil
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

// DB exposes the pool for tooling such as seeders and tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) InTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(errors.Wrap(err, "begin tx"))
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(errors.Wrap(err, "commit tx"))
	}
	return nil
}

// classify tags lock conflicts so callers can retry the transaction.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", port.ErrTxConflict, err)
	}
	return err
}

type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// toCents refuses amounts that would not survive the trip through an
// integer column.
func toCents(d decimal.Decimal) (int64, error) {
	c := d.Shift(2).Round(0)
	if c.LessThan(minInt64) || c.GreaterThan(maxInt64) {
		return 0, errors.Errorf("amount %s does not fit in cents", d)
	}
	return c.IntPart(), nil
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrNotFound
	}
	return err
}
