package datasource

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
)

func TestPool_BorrowReleaseRestoresIdle(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 3})
	pool := acquire(t, m, newFixture(t), "ws-1")

	before := pool.Stats()
	require.Equal(t, 1, before.Idle)

	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Stats().Idle)
	assert.Equal(t, 1, pool.Stats().Leased)

	pool.Release(c)
	after := pool.Stats()
	assert.Equal(t, before.Idle, after.Idle)
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, 0, after.Leased)
}

func TestPool_ConcurrentBorrowReleaseRestoresIdle(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 4, MaxSize: 4})
	pool := acquire(t, m, newFixture(t), "ws-1")
	require.Equal(t, 4, pool.Stats().Idle)

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				c, err := pool.Borrow(context.Background())
				if err != nil {
					return err
				}
				if err := c.Ping(context.Background()); err != nil {
					c.Release()
					return err
				}
				c.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	s := pool.Stats()
	assert.Equal(t, 4, s.Idle)
	assert.Equal(t, 4, s.Size)
	assert.Equal(t, 0, s.Leased)
}

func TestPool_ExhaustedAfterBorrowTimeout(t *testing.T) {
	timeout := 200 * time.Millisecond
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 2, BorrowTimeout: timeout})
	pool := acquire(t, m, newFixture(t), "ws-1")

	// max_size + 1 borrowers, none releasing until all have returned.
	const borrowers = 3
	var exhausted atomic.Int32
	leased := make(chan *Conn, borrowers)
	var g errgroup.Group
	start := time.Now()
	for i := 0; i < borrowers; i++ {
		g.Go(func() error {
			c, err := pool.Borrow(context.Background())
			if errors.Is(err, apperrors.ErrPoolExhausted) {
				exhausted.Add(1)
				assert.GreaterOrEqual(t, time.Since(start), timeout)
				return nil
			}
			if err != nil {
				return err
			}
			leased <- c
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(leased)

	assert.Equal(t, int32(1), exhausted.Load())
	assert.Equal(t, 2, pool.Stats().Size, "pool never grows past max_size")
	for c := range leased {
		c.Release()
	}
	assert.Equal(t, 2, pool.Stats().Idle)
}

func TestPool_WaiterGetsReleasedConnection(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 1, BorrowTimeout: 2 * time.Second})
	pool := acquire(t, m, newFixture(t), "ws-1")

	held, err := pool.Borrow(context.Background())
	require.NoError(t, err)

	done := make(chan *Conn, 1)
	go func() {
		c, err := pool.Borrow(context.Background())
		if err == nil {
			done <- c
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	held.Release()

	select {
	case c, ok := <-done:
		require.True(t, ok, "waiter should receive a connection")
		assert.Same(t, held, c, "the idle connection is reused")
		c.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestPool_BorrowHonoursContext(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 1, BorrowTimeout: 5 * time.Second})
	pool := acquire(t, m, newFixture(t), "ws-1")

	held, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Borrow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_DoubleReleaseIsNoOp(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 2})
	pool := acquire(t, m, newFixture(t), "ws-1")

	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	pool.Release(c)
	pool.Release(c)
	c.Release()

	s := pool.Stats()
	assert.Equal(t, 1, s.Idle)
	assert.Equal(t, 1, s.Size)

	// Slot accounting is intact: both slots are still borrowable.
	a, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	b, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	a.Release()
	b.Release()
}

func TestPool_BrokenConnectionDiscarded(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 2})
	pool := acquire(t, m, newFixture(t), "ws-1")

	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	c.MarkBroken()
	assert.True(t, c.Broken())
	c.Release()

	s := pool.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, 0, s.Idle)
	assert.Error(t, c.conn.PingContext(context.Background()), "discarded connection is closed")

	fresh, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c, fresh)
	fresh.Release()
}

func TestPool_ReleaseAfterEvictCloses(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 2})
	cfg := newFixture(t)
	pool := acquire(t, m, cfg, "ws-1")

	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)

	m.Evict(cfg.Fingerprint())
	assert.True(t, pool.IsEvicted())
	assert.Equal(t, 1, pool.Stats().Size, "leased connection outlives eviction")
	require.NoError(t, c.Ping(context.Background()), "in-flight work finishes normally")

	c.Release()
	assert.Equal(t, 0, pool.Stats().Size)
	assert.Error(t, c.conn.PingContext(context.Background()))

	_, err = pool.Borrow(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestPool_ReapIdleKeepsMinSize(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 3, IdleTimeout: time.Minute})
	pool := acquire(t, m, newFixture(t), "ws-1")

	a, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	b, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	a.Release()
	b.Release()
	c.Release()
	require.Equal(t, 3, pool.Stats().Idle)

	assert.Equal(t, 0, pool.reapIdle(time.Now()), "nothing is idle long enough yet")
	assert.Equal(t, 2, pool.reapIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, pool.Stats().Size)
	assert.Equal(t, 1, pool.Stats().Idle)
}

func TestPool_Test(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 0, MaxSize: 1})
	cfg := newFixture(t)
	pool := acquire(t, m, cfg, "ws-1")

	assert.Equal(t, 1, pool.Stats().Size, "min_size 0 still verifies one connection")
	assert.True(t, pool.Test(context.Background()))
	assert.Equal(t, 0, pool.Stats().Leased)

	pool.Evict()
	assert.False(t, pool.Test(context.Background()))
}

func TestPool_TestWhileFullyLeased(t *testing.T) {
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 1, BorrowTimeout: 5 * time.Second})
	pool := acquire(t, m, newFixture(t), "ws-1")

	c, err := pool.Borrow(context.Background())
	require.NoError(t, err)
	defer pool.Release(c)

	start := time.Now()
	assert.True(t, pool.Test(context.Background()), "leased connections prove the target is reachable")
	assert.Less(t, time.Since(start), time.Second, "must not wait for a free slot")
	assert.Equal(t, 1, pool.Stats().Leased)
}
