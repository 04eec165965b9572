package sqlqueue

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Adapter names the relational database family, matching the
// configuration key recognized under the application's database block.
type Adapter string

const (
	AdapterSQLite Adapter = "sqlite"
	AdapterMySQL  Adapter = "mysql"
	AdapterPgSQL  Adapter = "pgsql"
)

func (a Adapter) driverName() (string, error) {
	switch a {
	case AdapterSQLite:
		return "sqlite", nil
	case AdapterMySQL:
		return "mysql", nil
	case AdapterPgSQL:
		return "pgx", nil
	default:
		return "", fmt.Errorf("sqlqueue: unknown adapter %q", a)
	}
}

func (a Adapter) gooseDialect() (string, error) {
	switch a {
	case AdapterSQLite:
		return "sqlite3", nil
	case AdapterMySQL:
		return "mysql", nil
	case AdapterPgSQL:
		return "postgres", nil
	default:
		return "", fmt.Errorf("sqlqueue: unknown adapter %q", a)
	}
}

// PoolConfig controls the standard library connection pool sizing.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = 25
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = 5
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = 5 * time.Minute
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = time.Minute
	}
	return p
}

// Open connects to a relational database identified by adapter and dsn,
// applies pool sizing, verifies connectivity, and migrates the jobs and
// failed_jobs tables to the latest embedded revision.
func Open(ctx context.Context, adapter Adapter, dsn string, pool PoolConfig) (*sql.DB, error) {
	driver, err := adapter.driverName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlqueue: open %s: %w", adapter, err)
	}

	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlqueue: ping %s: %w", adapter, err)
	}

	if err := migrate(db, adapter); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrate(db *sql.DB, adapter Adapter) error {
	dialect, err := adapter.gooseDialect()
	if err != nil {
		return err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("sqlqueue: set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("sqlqueue: apply migrations: %w", err)
	}
	return nil
}

// SQLiteDSN builds a file DSN with the pragmas recommended for a
// single-writer queue workload: WAL mode, a busy timeout so concurrent
// pop attempts back off instead of erroring, and foreign keys on.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}
