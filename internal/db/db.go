package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"infinite-experiment/vitals/internal/checks"
	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
)

// ErrNotConfigured is returned by Connect when no database was configured.
var ErrNotConfigured = errors.New("database not configured")

const (
	connectAttempts = 10
	connectDelay    = 500 * time.Millisecond
)

// Handle is the service's database connection, opened either through sqlx or
// GORM depending on how the service talks to its store.
type Handle struct {
	SQLX *sqlx.DB
	ORM  *gorm.DB
}

// Connect opens the configured database. Connections are retried because the
// database commonly starts alongside the service.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Handle, error) {
	open, err := opener(cfg)
	if err != nil {
		return nil, err
	}
	return connectWithRetry(ctx, connectAttempts, connectDelay, open)
}

// opener validates cfg and returns a func making one connection attempt.
func opener(cfg config.DatabaseConfig) (func(ctx context.Context) (*Handle, error), error) {
	dsn := cfg.DatabaseDSN()
	if cfg.Driver == "" && dsn == "" {
		return nil, ErrNotConfigured
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	switch cfg.Client {
	case "gorm":
		dialector, err := dialectorFor(driver, dsn)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*Handle, error) { return openORM(driver, dialector) }, nil
	case "", "sqlx":
		if driver != "postgres" {
			return nil, fmt.Errorf("sqlx client supports postgres only, got %q", driver)
		}
		return func(ctx context.Context) (*Handle, error) { return openSQLX(ctx, dsn) }, nil
	default:
		return nil, fmt.Errorf("unknown database client %q", cfg.Client)
	}
}

func connectWithRetry(ctx context.Context, attempts int, delay time.Duration, open func(ctx context.Context) (*Handle, error)) (*Handle, error) {
	var err error
	for i := 0; i < attempts; i++ {
		var h *Handle
		h, err = open(ctx)
		if err == nil {
			logging.Info("Connected to database", "attempt", i+1)
			return h, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, err)
}

func openSQLX(ctx context.Context, dsn string) (*Handle, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Handle{SQLX: conn}, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
}

func openORM(driver string, dialector gorm.Dialector) (*Handle, error) {
	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return &Handle{ORM: conn}, nil
}

// Check returns the readiness check for this connection.
func (h *Handle) Check(name string) health.Check {
	if h.ORM != nil {
		return checks.GormPing(name, h.ORM)
	}
	return checks.SQLPing(name, h.SQLX)
}

// Close releases the underlying pool.
func (h *Handle) Close() error {
	if h.SQLX != nil {
		return h.SQLX.Close()
	}
	if h.ORM != nil {
		sqlDB, err := h.ORM.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
