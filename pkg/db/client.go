// Package db opens the GORM connection that backs the SQL state store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/logger"
)

const slowQueryThreshold = 250 * time.Millisecond

// dialects maps a configured driver to its GORM dialector and the matching
// goose dialect name.
var dialects = map[string]struct {
	open  func(dsn string) gorm.Dialector
	goose string
}{
	config.DBDriverPostgres: {
		open: func(dsn string) gorm.Dialector {
			return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
		},
		goose: "postgres",
	},
	config.DBDriverSQLite: {
		open:  sqlite.Open,
		goose: "sqlite3",
	},
}

// Client owns one pooled connection.
type Client struct {
	conn    *gorm.DB
	dialect string
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	d, ok := dialects[cfg.NormalizedDriver()]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(d.open(cfg.DSN), &gorm.Config{
		Logger:                 newGormLogger(logg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.goose, err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	tunePool(sqlDB, cfg)

	client := &Client{conn: conn, dialect: d.goose}
	if err := client.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", d.goose, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "db_driver", d.goose), "database ready")
	}
	return client, nil
}

// NewFromGorm wraps an already opened connection, mostly for tests.
func NewFromGorm(conn *gorm.DB, dialect string) *Client {
	return &Client{conn: conn, dialect: dialect}
}

func tunePool(sqlDB *sql.DB, cfg config.DBConfig) {
	// sqlite allows one writer; more connections only produce SQLITE_BUSY.
	if cfg.NormalizedDriver() == config.DBDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB { return c.conn }

// SQL returns the pooled database/sql handle, as goose needs it.
func (c *Client) SQL() (*sql.DB, error) { return c.conn.DB() }

// Dialect is the goose dialect name for the connection.
func (c *Client) Dialect() string { return c.dialect }

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.SQL()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter sends GORM's slow-query and error lines to the service logger.
type gormWriter struct {
	logg *logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logg.Warn(context.Background(), "gorm: "+fmt.Sprintf(format, args...))
}

func newGormLogger(logg *logger.Logger) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(gormWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
