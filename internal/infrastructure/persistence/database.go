package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/casaviva/backoffice/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pingTimeout = 2 * time.Second

// Database is the PostgreSQL connection pool behind the sales repositories.
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// DatabaseOption configures NewDatabase.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger  logger.Interface
	plugins []gorm.Plugin
}

// WithGormLogger replaces the silent default GORM logger.
func WithGormLogger(l logger.Interface) DatabaseOption {
	return func(o *databaseOptions) { o.logger = l }
}

// WithPlugins installs GORM plugins, statement tracing among them, once the
// connection is open.
func WithPlugins(plugins ...gorm.Plugin) DatabaseOption {
	return func(o *databaseOptions) { o.plugins = append(o.plugins, plugins...) }
}

// NewDatabase opens the pool described by cfg and pings it.
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	o := databaseOptions{logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		opt(&o)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 o.logger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range o.plugins {
		if err := gdb.Use(p); err != nil {
			return nil, fmt.Errorf("failed to install gorm plugin %s: %w", p.Name(), err)
		}
	}

	d, err := wrapDatabase(gdb)
	if err != nil {
		return nil, err
	}
	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	d.sql.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

func wrapDatabase(gdb *gorm.DB) (*Database, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &Database{DB: gdb, sql: sqlDB}, nil
}

// Ping checks the database answers within a short timeout. The health
// endpoint calls it on every probe.
func (d *Database) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return d.sql.PingContext(ctx)
}

// Stats returns the pool counters.
func (d *Database) Stats() sql.DBStats {
	return d.sql.Stats()
}

// Close closes the pool.
func (d *Database) Close() error {
	return d.sql.Close()
}

// TransactionScope returns the unit of work the sales services run their
// ledger operations in.
func (d *Database) TransactionScope() *GormTransactionScope {
	return NewGormTransactionScope(d.DB)
}
