package checks

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"infinite-experiment/vitals/internal/health"
)

// RedisPing reports Redis as ready when PING answers PONG.
func RedisPing(name string, client redis.UniversalClient) health.Check {
	return health.NewCheck(name, func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	})
}
