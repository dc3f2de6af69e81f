package dispatch

import (
	"context"
	"fmt"

	"mediaforge/internal/config"
	"mediaforge/internal/store"
)

// Open returns the queue backend selected by cfg.
func Open(ctx context.Context, cfg *config.Config, st *store.Store) (Queue, error) {
	switch cfg.Dispatch.Backend {
	case config.DispatchSQLite, "":
		return NewSQLite(st), nil
	case config.DispatchRedis:
		return DialRedis(ctx, cfg.Dispatch.RedisURL, cfg.Dispatch.RedisQueue)
	default:
		return nil, fmt.Errorf("unknown dispatch backend %q", cfg.Dispatch.Backend)
	}
}
