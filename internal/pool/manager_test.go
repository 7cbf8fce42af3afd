package pool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/sqlpipe/internal/config"
	"github.com/JonMunkholm/sqlpipe/internal/pool"
	"github.com/JonMunkholm/sqlpipe/internal/pool/pooltest"
)

func connectorReturning(pools ...pool.Pool) pool.Connector {
	var mu sync.Mutex
	return func(context.Context, config.DatabaseConfig) (pool.Pool, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(pools) == 0 {
			return nil, errors.New("no more pools")
		}
		p := pools[0]
		pools = pools[1:]
		return p, nil
	}
}

func TestNewManager_ConnectFailure(t *testing.T) {
	connect := func(context.Context, config.DatabaseConfig) (pool.Pool, error) {
		return nil, errors.New("dial tcp: refused")
	}

	_, err := pool.NewManager(context.Background(), config.DatabaseConfig{}, pool.WithConnector(connect))

	var ce *pool.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("NewManager() error = %v, want *ConnectionError", err)
	}
}

func TestAcquire(t *testing.T) {
	fake := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(fake)

	conn, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := fake.Acquired(); got != 1 {
		t.Errorf("Acquired() = %d, want 1", got)
	}

	conn.Release()
	if got := fake.Acquired(); got != 0 {
		t.Errorf("Acquired() after Release = %d, want 0", got)
	}
}

func TestAcquire_Failure(t *testing.T) {
	fake := pooltest.NewPool(nil)
	fake.AcquireErr = errors.New("too many clients")
	m := pool.NewManagerWithPool(fake)

	_, err := m.Acquire(context.Background())

	var ce *pool.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Acquire() error = %v, want *ConnectionError", err)
	}
	if !errors.Is(err, fake.AcquireErr) {
		t.Errorf("Acquire() error does not wrap driver error: %v", err)
	}
}

func TestAcquire_PoolFromContext(t *testing.T) {
	active := pooltest.NewPool(nil)
	pinned := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(active)

	ctx := pool.WithPool(context.Background(), pinned)
	conn, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer conn.Release()

	if pinned.Acquired() != 1 || active.Acquired() != 0 {
		t.Errorf("pinned=%d active=%d, want connection from pinned pool", pinned.Acquired(), active.Acquired())
	}
}

func TestAcquire_AfterClose(t *testing.T) {
	fake := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(fake)
	m.Close()

	if !fake.Closed() {
		t.Error("Close() did not close the active pool")
	}
	if _, err := m.Acquire(context.Background()); !errors.Is(err, pool.ErrClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrClosed", err)
	}
}

func TestRecreate_SwapsAfterDrain(t *testing.T) {
	old := pooltest.NewPool(nil)
	next := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(old,
		pool.WithConnector(connectorReturning(next)),
		pool.WithPollInterval(time.Millisecond),
	)

	if err := m.Recreate(context.Background(), config.DatabaseConfig{}); err != nil {
		t.Fatalf("Recreate() error = %v", err)
	}

	if m.Pool() != next {
		t.Error("Pool() is not the replacement after Recreate")
	}
	if !old.Closed() {
		t.Error("old pool was not closed")
	}
	if next.Closed() {
		t.Error("replacement pool was closed")
	}
	if got := m.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}

func TestRecreate_InFlightFinishesOnOldPool(t *testing.T) {
	old := pooltest.NewPool(nil)
	next := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(old,
		pool.WithConnector(connectorReturning(next)),
		pool.WithPollInterval(time.Millisecond),
		pool.WithTeardownTimeout(5*time.Second),
	)

	inFlight, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Recreate(context.Background(), config.DatabaseConfig{}) }()

	// The in-flight connection still works against the old pool.
	time.Sleep(20 * time.Millisecond)
	if _, err := inFlight.Exec(context.Background(), "UPDATE t SET a = 1"); err != nil {
		t.Fatalf("Exec() on in-flight connection error = %v", err)
	}
	if m.Pool() != old {
		t.Fatal("pool swapped before the old pool drained")
	}
	inFlight.Release()

	if err := <-done; err != nil {
		t.Fatalf("Recreate() error = %v", err)
	}
	if got := old.Statements(); len(got) != 1 {
		t.Errorf("old pool statements = %v, want the in-flight UPDATE", got)
	}

	conn, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after Recreate error = %v", err)
	}
	defer conn.Release()
	if next.Acquired() != 1 {
		t.Error("Acquire() after Recreate did not use the replacement")
	}
}

func TestRecreate_TeardownTimeoutKeepsOldPool(t *testing.T) {
	old := pooltest.NewPool(nil)
	next := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(old,
		pool.WithConnector(connectorReturning(next)),
		pool.WithPollInterval(time.Millisecond),
		pool.WithTeardownTimeout(20*time.Millisecond),
	)

	held, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer held.Release()

	err = m.Recreate(context.Background(), config.DatabaseConfig{})

	var te *pool.PoolTeardownError
	if !errors.As(err, &te) {
		t.Fatalf("Recreate() error = %v, want *PoolTeardownError", err)
	}
	if te.Acquired != 1 {
		t.Errorf("Acquired = %d, want 1", te.Acquired)
	}
	if m.Pool() != old {
		t.Error("old pool is no longer active after failed Recreate")
	}
	if old.Closed() {
		t.Error("old pool was closed after failed Recreate")
	}
	if !next.Closed() {
		t.Error("replacement pool was not discarded")
	}
	if got := m.Generation(); got != 1 {
		t.Errorf("Generation() = %d, want 1", got)
	}

	// The old pool keeps serving.
	conn, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after failed Recreate error = %v", err)
	}
	conn.Release()
}

func TestRecreate_ConnectFailureKeepsOldPool(t *testing.T) {
	old := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(old, pool.WithConnector(connectorReturning()))

	err := m.Recreate(context.Background(), config.DatabaseConfig{})

	var ce *pool.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Recreate() error = %v, want *ConnectionError", err)
	}
	if m.Pool() != old || old.Closed() {
		t.Error("old pool disturbed by failed connect")
	}
}

func TestRecreate_AcquireWaitsForSwap(t *testing.T) {
	old := pooltest.NewPool(nil)
	next := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(old,
		pool.WithConnector(connectorReturning(next)),
		pool.WithPollInterval(time.Millisecond),
		pool.WithTeardownTimeout(5*time.Second),
	)

	held, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	recreated := make(chan error, 1)
	go func() { recreated <- m.Recreate(context.Background(), config.DatabaseConfig{}) }()
	time.Sleep(10 * time.Millisecond)

	acquired := make(chan pool.Conn, 1)
	go func() {
		c, err := m.Acquire(context.Background())
		if err != nil {
			t.Errorf("Acquire() during drain error = %v", err)
			close(acquired)
			return
		}
		acquired <- c
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned while the old pool was draining")
	case <-time.After(20 * time.Millisecond):
	}

	held.Release()
	if err := <-recreated; err != nil {
		t.Fatalf("Recreate() error = %v", err)
	}

	c, ok := <-acquired
	if !ok {
		return
	}
	defer c.Release()
	if next.Acquired() != 1 {
		t.Error("waiting Acquire() did not draw from the replacement pool")
	}
}

func TestManager_ConcurrentAcquire(t *testing.T) {
	fake := pooltest.NewPool(nil)
	m := pool.NewManagerWithPool(fake)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			c.Release()
		}()
	}
	wg.Wait()

	if got := fake.Acquired(); got != 0 {
		t.Errorf("Acquired() = %d, want 0", got)
	}
}
