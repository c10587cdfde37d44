package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"    // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/port"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

// dialect captures what differs between the supported stores.
type dialect struct {
	goqu        string
	family      string
	lockClause  string
	returningID bool
}

// SQLite has no row locks. Its transactions are opened with _txlock=immediate,
// which takes the database write lock at BEGIN and gives the same exclusive
// read-decide-write window.
var dialects = map[string]dialect{
	DriverMySQL:    {goqu: "mysql", family: DriverMySQL, lockClause: " FOR UPDATE"},
	DriverPostgres: {goqu: "postgres", family: DriverPostgres, lockClause: " FOR UPDATE", returningID: true},
	DriverPGX:      {goqu: "postgres", family: DriverPostgres, lockClause: " FOR UPDATE", returningID: true},
	DriverSQLite:   {goqu: "sqlite3", family: DriverSQLite},
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SQLStore implements the circulation, catalog, member and librarian ports
// on one relational database.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	log     *zap.Logger
}

var (
	_ port.CirculationRepository = (*SQLStore)(nil)
	_ port.CatalogRepository     = (*SQLStore)(nil)
	_ port.MemberRepository      = (*SQLStore)(nil)
	_ port.LibrarianRepository   = (*SQLStore)(nil)
)

func OpenSQLStore(ctx context.Context, driver, dsn string, pool PoolConfig, log *zap.Logger) (*SQLStore, error) {
	if _, ok := dialects[driver]; !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
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
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return NewSQLStore(db, log)
}

func NewSQLStore(db *sqlx.DB, log *zap.Logger) (*SQLStore, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", db.DriverName())
	}
	return &SQLStore{db: db, dialect: d, log: log}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) builder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect.goqu)
}

// RunInTx commits when fn returns nil. Any error, or a panic, rolls the
// transaction back before it propagates, which also releases the row locks.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx port.CirculationTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		s.rollback(tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLStore) rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Error("rollback failed", zap.Error(err))
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// insertReturningID runs an insert built with goqu and reports the new row id.
func (s *SQLStore) insertReturningID(ctx context.Context, q execer, ds *goqu.InsertDataset) (int64, error) {
	return insertID(ctx, q, s.dialect, ds)
}

func insertID(ctx context.Context, q execer, d dialect, ds *goqu.InsertDataset) (int64, error) {
	if d.returningID {
		query, args, err := ds.Returning("id").Prepared(true).ToSQL()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}
		var id int64
		if err := q.GetContext(ctx, &id, query, args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
