package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/dictsync/internal/infrastructure/config"
)

// NewEntDriver opens the configured database as an ent SQL driver.
func NewEntDriver(cfg *config.Config, logger *logrus.Logger) (dialect.Driver, func(), error) {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database driver: %w", err)
	}

	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return nil, nil, fmt.Errorf("determine database dsn: %w", err)
	}

	var drv *entsql.Driver
	switch driver {
	case "postgres":
		drv, err = openPostgres(dsn)
	case "sqlite3":
		drv, err = openSQLite(dsn)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}

	var out dialect.Driver = drv
	if cfg.Database.LogSQL {
		entry := logger.WithField("component", "sql")
		out = dialect.DebugWithContext(drv, func(_ context.Context, v ...any) {
			entry.Debug(v...)
		})
	}
	return out, func() {
		_ = drv.Close()
	}, nil
}

func openPostgres(dsn string) (*entsql.Driver, error) {
	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ent sql db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping ent sql db: %w", err)
	}
	return entsql.OpenDB(dialect.Postgres, rawDB), nil
}

// OpenSQLite opens a sqlite file as an ent driver; dsn is a go-sqlite3 DSN.
func OpenSQLite(dsn string) (*entsql.Driver, error) {
	return openSQLite(dsn)
}

func openSQLite(dsn string) (*entsql.Driver, error) {
	rawDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	rawDB.SetMaxOpenConns(1)
	rawDB.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := rawDB.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	return entsql.OpenDB(dialect.SQLite, rawDB), nil
}
