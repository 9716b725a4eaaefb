package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-finalize/store/dialect"
)

// DBConfig describes how to open the backing database.
type DBConfig struct {
	Driver          string
	DSN             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c DBConfig) Validate() error {
	if _, err := dialect.ForDriver(c.Driver); err != nil {
		return err
	}
	if c.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.MaxOpenConns < 0 {
		return errors.New("database max_open_conns must be >= 0")
	}
	if c.MaxIdleConns < 0 {
		return errors.New("database max_idle_conns must be >= 0")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("database max_idle_conns must be <= max_open_conns")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("database conn_max_lifetime must be >= 0")
	}
	return nil
}

// Open opens and pings the database, returning the handle with its dialect.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, dialect.Dialect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, dialect.Dialect{}, err
	}
	d, _ := dialect.ForDriver(cfg.Driver)

	db, err := sql.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, dialect.Dialect{}, fmt.Errorf("open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, dialect.Dialect{}, fmt.Errorf("ping: %w", err)
	}

	return db, d, nil
}
