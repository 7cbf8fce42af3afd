package core

import (
	"context"

	"github.com/JonMunkholm/sqlpipe/internal/config"
	"github.com/JonMunkholm/sqlpipe/internal/pool"
)

// Service runs statements and bulk transfers against a managed pool.
type Service struct {
	pools *pool.Manager
	cfg   *config.Config
}

// NewService creates a Service. A nil cfg uses config defaults.
func NewService(pools *pool.Manager, cfg *config.Config) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{pools: pools, cfg: cfg}
}

// Pools returns the pool manager, for recreating the pool or acquiring a
// connection to pin with WithConn.
func (s *Service) Pools() *pool.Manager {
	return s.pools
}

// conn returns the connection pinned in ctx, or acquires one. The returned
// release func must be called when done; for a pinned connection it does
// nothing.
func (s *Service) conn(ctx context.Context) (pool.Conn, func(), error) {
	if c := ConnFromContext(ctx); c != nil {
		return c, func() {}, nil
	}
	c, err := s.pools.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Release, nil
}

// pinned returns ctx with a connection pinned, acquiring one if ctx has
// none, so that a sequence of statements runs on a single connection.
func (s *Service) pinned(ctx context.Context) (context.Context, func(), error) {
	if ConnFromContext(ctx) != nil {
		return ctx, func() {}, nil
	}
	c, err := s.pools.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return WithConn(ctx, c), c.Release, nil
}

func (s *Service) batchSize() int {
	if s.cfg.Import.BatchSize > 0 {
		return s.cfg.Import.BatchSize
	}
	return 5000
}

func (s *Service) highWaterMark() int {
	if s.cfg.Export.HighWaterMark > 0 {
		return s.cfg.Export.HighWaterMark
	}
	return 5
}
