package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// RedisCheck fails when the Redis server does not answer PING.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		return nil
	}
}
