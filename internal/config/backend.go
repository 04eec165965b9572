package config

import (
	"context"
	"fmt"

	"github.com/rezkam/chronoqueue/internal/queue/fsqueue"
	"github.com/rezkam/chronoqueue/internal/queue/sqlqueue"
	"github.com/rezkam/chronoqueue/internal/queue/syncqueue"
	"github.com/rezkam/chronoqueue/queue"
	"github.com/rezkam/chronoqueue/registry"
)

// BuildBackend selects and constructs the queue.Backend variant named
// by cfg.Queue.Driver. An unrecognized driver is queue.ErrUnknownDriver,
// returned before any Manager is constructed.
func BuildBackend(ctx context.Context, cfg Config, reg *registry.Registry) (queue.Backend, error) {
	switch cfg.Queue.Driver {
	case "database":
		dsn, adapter, err := cfg.Database.dsn()
		if err != nil {
			return nil, err
		}
		db, err := sqlqueue.Open(ctx, adapter, dsn, sqlqueue.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("config: open database backend: %w", err)
		}
		return sqlqueue.NewBackend(db, adapter), nil

	case "file":
		b, err := fsqueue.New(cfg.Queue.FilePath)
		if err != nil {
			return nil, fmt.Errorf("config: open file backend: %w", err)
		}
		return b, nil

	case "sync":
		return syncqueue.New(reg), nil

	default:
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownDriver, cfg.Queue.Driver)
	}
}

// dsn builds a driver-appropriate connection string from the database
// block's discrete fields, following spec.md §6's recognized keys.
func (d DatabaseConfig) dsn() (string, sqlqueue.Adapter, error) {
	switch d.Adapter {
	case "sqlite", "":
		path := d.Name
		if path == "" {
			path = "chronoqueue.db"
		}
		return sqlqueue.SQLiteDSN(path), sqlqueue.AdapterSQLite, nil

	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", d.User, d.Pass, d.Host, port(d.Port, "3306"), d.Name)
		if d.Charset != "" {
			dsn += "?charset=" + d.Charset
		}
		return dsn, sqlqueue.AdapterMySQL, nil

	case "pgsql":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Pass, d.Host, port(d.Port, "5432"), d.Name)
		return dsn, sqlqueue.AdapterPgSQL, nil

	default:
		return "", "", fmt.Errorf("config: unknown database adapter %q", d.Adapter)
	}
}

func port(p, fallback string) string {
	if p == "" {
		return fallback
	}
	return p
}
