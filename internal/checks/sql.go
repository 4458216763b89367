// Package checks provides readiness checks for the dependencies a fleet
// service typically waits on before accepting traffic.
package checks

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"infinite-experiment/vitals/internal/health"
)

// Pinger is satisfied by *sql.DB and *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SQLPing reports the database as ready when a ping round-trips.
func SQLPing(name string, db Pinger) health.Check {
	return health.NewCheck(name, func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}

// GormPing pings the connection pool underneath a GORM handle.
func GormPing(name string, db *gorm.DB) health.Check {
	return health.NewCheck(name, func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB from gorm: %w", err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		return nil
	})
}
