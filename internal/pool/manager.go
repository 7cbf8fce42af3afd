package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/sqlpipe/internal/config"
	"github.com/JonMunkholm/sqlpipe/internal/logging"
)

const (
	defaultTeardownTimeout = 30 * time.Second
	defaultPollInterval    = 10 * time.Millisecond
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool manager closed")

// handle is one installed pool. Replacing the pool swaps the handle.
type handle struct {
	pool       Pool
	generation uint64
}

// Manager holds the active pool and replaces it on demand.
//
// Acquire is safe for concurrent use. Recreate drains the active pool
// before installing the replacement: while it drains, new Acquire calls
// wait, and connections already checked out finish on the old pool. If the
// old pool does not drain within the teardown timeout the replacement is
// discarded and the old pool stays active.
type Manager struct {
	active   atomic.Pointer[handle]
	draining atomic.Pointer[chan struct{}]
	closed   atomic.Bool

	mu       sync.Mutex // serializes Recreate and Close
	connect  Connector
	teardown time.Duration
	poll     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnector replaces the function used to build pools.
func WithConnector(c Connector) Option {
	return func(m *Manager) { m.connect = c }
}

// WithTeardownTimeout bounds how long Recreate waits for the old pool.
func WithTeardownTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.teardown = d
		}
	}
}

// WithPollInterval sets how often Recreate checks the old pool for
// outstanding connections.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.poll = d
		}
	}
}

// NewManager connects a pool from cfg and returns a Manager owning it.
func NewManager(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Manager, error) {
	m := newManager()
	if cfg.TeardownTimeout > 0 {
		m.teardown = cfg.TeardownTimeout
	}
	for _, opt := range opts {
		opt(m)
	}

	p, err := m.connect(ctx, cfg)
	if err != nil {
		return nil, wrapConnect(err)
	}
	m.active.Store(&handle{pool: p, generation: 1})
	return m, nil
}

// NewManagerWithPool returns a Manager owning an existing pool.
func NewManagerWithPool(p Pool, opts ...Option) *Manager {
	m := newManager()
	for _, opt := range opts {
		opt(m)
	}
	m.active.Store(&handle{pool: p, generation: 1})
	return m
}

func newManager() *Manager {
	return &Manager{
		connect:  Connect,
		teardown: defaultTeardownTimeout,
		poll:     defaultPollInterval,
	}
}

// Pool returns the active pool.
func (m *Manager) Pool() Pool {
	return m.active.Load().pool
}

// Generation counts installed pools, starting at 1.
func (m *Manager) Generation() uint64 {
	return m.active.Load().generation
}

// Acquire checks out a connection. A pool attached to ctx with WithPool is
// used in preference to the active one. The caller must Release the
// connection.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	if p := FromContext(ctx); p != nil {
		return acquire(ctx, p)
	}
	if m.closed.Load() {
		return nil, &ConnectionError{Op: "acquire", Err: ErrClosed}
	}

	if ch := m.draining.Load(); ch != nil {
		select {
		case <-*ch:
		case <-ctx.Done():
			return nil, &ConnectionError{Op: "acquire", Err: ctx.Err()}
		}
	}

	h := m.active.Load()
	c, err := h.pool.Acquire(ctx)
	if err != nil {
		// The pool may have been swapped out between loading and acquiring.
		if cur := m.active.Load(); cur != h && !m.closed.Load() {
			return acquire(ctx, cur.pool)
		}
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	return c, nil
}

func acquire(ctx context.Context, p Pool) (Conn, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	return c, nil
}

// Recreate builds a pool from cfg and installs it in place of the active
// one once the active pool has no checked-out connections.
//
// A connect failure returns a *ConnectionError. A drain that does not
// finish within the teardown timeout, or before ctx is done, returns a
// *PoolTeardownError. In both cases the active pool is left in place.
func (m *Manager) Recreate(ctx context.Context, cfg config.DatabaseConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return &ConnectionError{Op: "recreate", Err: ErrClosed}
	}

	logger := logging.WithFields(ctx, "generation", m.Generation())

	next, err := m.connect(ctx, cfg)
	if err != nil {
		logger.Error("pool recreate: connect failed", "error", err)
		return wrapConnect(err)
	}

	old := m.active.Load()

	gate := make(chan struct{})
	m.draining.Store(&gate)
	defer func() {
		m.draining.Store(nil)
		close(gate)
	}()

	if err := m.drain(ctx, old.pool); err != nil {
		next.Close()
		logger.Error("pool recreate: teardown failed", "error", err)
		return err
	}

	if !m.active.CompareAndSwap(old, &handle{pool: next, generation: old.generation + 1}) {
		next.Close()
		return &PoolTeardownError{Err: errors.New("active pool changed during recreate")}
	}
	old.pool.Close()

	logger.Info("pool recreated", "new_generation", old.generation+1)
	return nil
}

// drain waits until p has no checked-out connections.
func (m *Manager) drain(ctx context.Context, p Pool) error {
	if p.Acquired() == 0 {
		return nil
	}

	timer := time.NewTimer(m.teardown)
	defer timer.Stop()
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.Acquired() == 0 {
				return nil
			}
		case <-timer.C:
			return &PoolTeardownError{
				Timeout:  m.teardown,
				Acquired: p.Acquired(),
				Err:      context.DeadlineExceeded,
			}
		case <-ctx.Done():
			return &PoolTeardownError{
				Timeout:  m.teardown,
				Acquired: p.Acquired(),
				Err:      ctx.Err(),
			}
		}
	}
}

// Close closes the active pool. Further Acquire calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Swap(true) {
		return
	}
	m.active.Load().pool.Close()
}

func wrapConnect(err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: "connect", Err: err}
}

// PoolTeardownError reports that the old pool could not be drained during
// Recreate. The old pool remains active.
type PoolTeardownError struct {
	Timeout  time.Duration
	Acquired int32 // connections still checked out when the drain gave up
	Err      error
}

func (e *PoolTeardownError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("pool teardown: %d connections still in use after %s: %v", e.Acquired, e.Timeout, e.Err)
	}
	return fmt.Sprintf("pool teardown: %v", e.Err)
}

func (e *PoolTeardownError) Unwrap() error { return e.Err }
