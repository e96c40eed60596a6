package runtime

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
)

// Supported drivers.
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config describes the connection of one database alias.
type Config struct {
	Driver   string
	URL      string
	MaxConns int32
	MinConns int32
}

// Engine is the connection of one database alias. It wraps a pgx pool or a
// database/sql handle and implements mapping.Conn.
type Engine struct {
	alias   string
	driver  string
	pool    *pgxpool.Pool
	db      *sql.DB
	dialect mapping.Dialect
}

// Connect opens and pings the database described by config.
func Connect(ctx context.Context, alias string, config Config) (*Engine, error) {
	switch config.Driver {
	case DriverPgx, "":
		return connectPgx(ctx, alias, config)
	case DriverPostgres, DriverSQLite:
		return connectSQL(ctx, alias, config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, config.Driver)
	}
}

func connectPgx(ctx context.Context, alias string, config Config) (*Engine, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPoolEngine(alias, pool), nil
}

func connectSQL(ctx context.Context, alias string, config Config) (*Engine, error) {
	db, err := sql.Open(config.Driver, config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if config.Driver == DriverSQLite {
		// Every connection to an in-memory database is a separate database.
		db.SetMaxOpenConns(1)
	} else if config.MaxConns > 0 {
		db.SetMaxOpenConns(int(config.MaxConns))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLEngine(alias, config.Driver, db), nil
}

// NewPoolEngine wraps an existing pgx pool.
func NewPoolEngine(alias string, pool *pgxpool.Pool) *Engine {
	return &Engine{alias: alias, driver: DriverPgx, pool: pool, dialect: mapping.Postgres}
}

// NewSQLEngine wraps an existing database/sql handle opened with driver.
func NewSQLEngine(alias, driver string, db *sql.DB) *Engine {
	d := mapping.Postgres
	if driver == DriverSQLite {
		d = mapping.SQLite
	}
	return &Engine{alias: alias, driver: driver, db: db, dialect: d}
}

// Alias returns the database alias the engine serves.
func (e *Engine) Alias() string {
	return e.alias
}

// Driver returns the driver name.
func (e *Engine) Driver() string {
	return e.driver
}

// Dialect returns the SQL dialect of the driver.
func (e *Engine) Dialect() mapping.Dialect {
	return e.dialect
}

// Pool returns the underlying pgx pool, or nil for database/sql engines.
func (e *Engine) Pool() *pgxpool.Pool {
	return e.pool
}

// DB returns the underlying database/sql handle, or nil for pgx engines.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Ping verifies the connection is alive.
func (e *Engine) Ping(ctx context.Context) error {
	if e.pool != nil {
		return e.pool.Ping(ctx)
	}
	return e.db.PingContext(ctx)
}

// Exec executes a statement without returning rows.
func (e *Engine) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if e.pool != nil {
		result, err := e.pool.Exec(ctx, sql, args...)
		if err != nil {
			return 0, &QueryError{Query: sql, Err: err}
		}
		return result.RowsAffected(), nil
	}
	result, err := e.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, &QueryError{Query: sql, Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &QueryError{Query: sql, Err: err}
	}
	return n, nil
}

// Query executes a statement that returns rows.
func (e *Engine) Query(ctx context.Context, sql string, args ...any) (mapping.Rows, error) {
	if e.pool != nil {
		rows, err := e.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, &QueryError{Query: sql, Err: err}
		}
		return rows, nil
	}
	rows, err := e.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{Query: sql, Err: err}
	}
	return &sqlRows{rows: rows}, nil
}

// Close closes the pool or handle.
func (e *Engine) Close() error {
	if e.pool != nil {
		e.pool.Close()
		return nil
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// sqlRows adapts *sql.Rows to mapping.Rows.
type sqlRows struct {
	rows *sql.Rows
	err  error
}

func (r *sqlRows) Next() bool {
	return r.err == nil && r.rows.Next()
}

func (r *sqlRows) Values() ([]any, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *sqlRows) Close() {
	_ = r.rows.Close()
}
