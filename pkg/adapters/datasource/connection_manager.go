package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

const (
	DefaultPoolMinSize   = 1
	DefaultPoolMaxSize   = 10
	DefaultBorrowTimeout = 10 * time.Second
	DefaultCreateTimeout = 30 * time.Second
)

const maxAcquireAttempts = 3

var errManagerClosed = errors.New("connection manager is closed")

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	Pool PoolOptions
	// CleanupInterval is how often idle connections and unreferenced pools
	// are reaped. Zero disables the background loop.
	CleanupInterval time.Duration
	// CreateTimeout bounds one shared pool creation, which runs detached
	// from the cancellation of the caller that started it.
	CreateTimeout time.Duration
}

// ConnectionManager owns one Pool per fingerprint. Pools are reference
// counted by holder (a workspace id) and destroyed when the last holder
// releases them.
type ConnectionManager struct {
	mu       sync.RWMutex
	pools    map[models.Fingerprint]*managedPool
	creating singleflight.Group
	opts     PoolOptions
	interval time.Duration
	createTO time.Duration
	created  atomic.Int64
	stopped  bool
	stopChan chan struct{}
	metrics  *Metrics
	logger   *zap.Logger
}

type managedPool struct {
	pool    *Pool
	holders map[string]struct{}
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, metrics *Metrics, logger *zap.Logger) *ConnectionManager {
	if cfg.Pool.MaxSize <= 0 {
		cfg.Pool.MaxSize = DefaultPoolMaxSize
	}
	if cfg.Pool.MinSize < 0 {
		cfg.Pool.MinSize = DefaultPoolMinSize
	}
	if cfg.Pool.MinSize > cfg.Pool.MaxSize {
		cfg.Pool.MinSize = cfg.Pool.MaxSize
	}
	if cfg.Pool.BorrowTimeout <= 0 {
		cfg.Pool.BorrowTimeout = DefaultBorrowTimeout
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultCreateTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	m := &ConnectionManager{
		pools:    make(map[models.Fingerprint]*managedPool),
		opts:     cfg.Pool,
		interval: cfg.CleanupInterval,
		createTO: cfg.CreateTimeout,
		stopChan: make(chan struct{}),
		metrics:  metrics,
		logger:   logger.Named("pool-manager"),
	}

	if m.interval > 0 {
		go m.cleanupLoop()
	}
	return m
}

// AcquirePool returns the pool for fp, creating it from cfg if none is
// registered, and records holder as a reference. Concurrent calls for the
// same fingerprint share a single creation; calls for different
// fingerprints never wait on each other. On failure nothing is registered.
func (m *ConnectionManager) AcquirePool(ctx context.Context, fp models.Fingerprint, cfg models.ConnectionConfig, holder string) (*Pool, error) {
	cfg = cfg.Normalized()
	d, err := GetDialect(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := d.ValidateConfig(cfg); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, err)
	}

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		pool, err := m.attach(fp, holder)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			return pool, nil
		}

		created := m.creating.DoChan(fp.String(), func() (any, error) {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.createTO)
			defer cancel()
			return nil, m.createPool(cctx, fp, d, cfg)
		})
		var res singleflight.Result
		select {
		case res = <-created:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if err, shared := res.Err, res.Shared; err != nil {
			if shared {
				m.logger.Debug("shared pool creation failed", zap.String("fingerprint", fp.Short()))
			}
			return nil, err
		}
	}
	return nil, apperrors.New(apperrors.ErrConnection, fmt.Errorf("pool for %s was evicted while acquiring", fp.Short()))
}

// attach adds holder to a live registered pool. Returns nil, nil when
// no live pool is registered.
func (m *ConnectionManager) attach(fp models.Fingerprint, holder string) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, errManagerClosed
	}
	mp, ok := m.pools[fp]
	if !ok || mp.pool.IsEvicted() {
		return nil, nil
	}
	mp.holders[holder] = struct{}{}
	return mp.pool, nil
}

// createPool runs inside the per-fingerprint single-flight. Dialing happens
// without m.mu held.
func (m *ConnectionManager) createPool(ctx context.Context, fp models.Fingerprint, d Dialect, cfg models.ConnectionConfig) error {
	m.mu.RLock()
	mp, exists := m.pools[fp]
	m.mu.RUnlock()
	if exists && !mp.pool.IsEvicted() {
		return nil
	}

	pool, err := newPool(ctx, fp, d, cfg, m.opts, m.metrics, m.logger)
	if err != nil {
		m.logger.Warn("failed to create pool",
			zap.String("fingerprint", fp.Short()),
			zap.String("db_type", string(cfg.Type)),
			zap.String("code", apperrors.Code(err)),
		)
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		pool.Evict()
		return errManagerClosed
	}
	m.pools[fp] = &managedPool{pool: pool, holders: make(map[string]struct{})}
	m.mu.Unlock()

	m.created.Add(1)
	m.metrics.poolCreated()
	m.logger.Info("created new connection pool",
		zap.String("fingerprint", fp.Short()),
		zap.String("db_type", string(cfg.Type)),
		zap.Int("min_size", m.opts.MinSize),
		zap.Int("max_size", m.opts.MaxSize),
	)
	return nil
}

// ReleasePool drops holder's reference to fp. When no holders remain the
// pool is evicted and unregistered; in-flight leases finish normally and
// their connections close on release. Returns true if the pool was destroyed.
func (m *ConnectionManager) ReleasePool(fp models.Fingerprint, holder string) bool {
	m.mu.Lock()
	mp, ok := m.pools[fp]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if _, held := mp.holders[holder]; !held {
		m.mu.Unlock()
		return false
	}
	delete(mp.holders, holder)
	if len(mp.holders) > 0 {
		remaining := len(mp.holders)
		m.mu.Unlock()
		m.logger.Debug("released pool reference",
			zap.String("fingerprint", fp.Short()),
			zap.Int("remaining_holders", remaining),
		)
		return false
	}
	delete(m.pools, fp)
	m.mu.Unlock()

	mp.pool.Evict()
	m.metrics.poolRemoved()
	return true
}

// Evict destroys the pool for fp regardless of holders.
func (m *ConnectionManager) Evict(fp models.Fingerprint) {
	m.mu.Lock()
	mp, ok := m.pools[fp]
	if ok {
		delete(m.pools, fp)
	}
	m.mu.Unlock()

	if ok {
		mp.pool.Evict()
		m.metrics.poolRemoved()
	}
}

// RefreshPool replaces the pool for fp with a freshly created one, keeping
// its holders. The old pool is evicted; its leased connections close on
// release.
func (m *ConnectionManager) RefreshPool(ctx context.Context, fp models.Fingerprint, cfg models.ConnectionConfig) error {
	cfg = cfg.Normalized()
	d, err := GetDialect(cfg.Type)
	if err != nil {
		return err
	}

	fresh, err := newPool(ctx, fp, d, cfg, m.opts, m.metrics, m.logger)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old, ok := m.pools[fp]
	if !ok || m.stopped {
		m.mu.Unlock()
		fresh.Evict()
		return apperrors.New(apperrors.ErrNotFound, fmt.Errorf("no pool registered for %s", fp.Short()))
	}
	m.pools[fp] = &managedPool{pool: fresh, holders: old.holders}
	m.mu.Unlock()

	old.pool.Evict()
	m.created.Add(1)
	m.metrics.poolsCreated.Inc()
	m.logger.Info("refreshed connection pool", zap.String("fingerprint", fp.Short()))
	return nil
}

// Pool returns the registered pool for fp.
func (m *ConnectionManager) Pool(fp models.Fingerprint) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.pools[fp]
	if !ok {
		return nil, false
	}
	return mp.pool, true
}

// Borrow leases a connection from the pool registered for fp.
func (m *ConnectionManager) Borrow(ctx context.Context, fp models.Fingerprint) (*Conn, error) {
	pool, ok := m.Pool(fp)
	if !ok {
		return nil, apperrors.New(apperrors.ErrConnection, fmt.Errorf("no pool registered for %s", fp.Short())).
			WithFingerprint(fp.String())
	}
	return pool.Borrow(ctx)
}

// Release returns c to the pool it came from.
func (m *ConnectionManager) Release(c *Conn) {
	if c != nil {
		c.pool.Release(c)
	}
}

// Test runs a liveness check against the pool for fp.
func (m *ConnectionManager) Test(ctx context.Context, fp models.Fingerprint) bool {
	pool, ok := m.Pool(fp)
	if !ok {
		return false
	}
	return pool.Test(ctx)
}

// Holders returns how many distinct holders reference fp.
func (m *ConnectionManager) Holders(fp models.Fingerprint) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mp, ok := m.pools[fp]; ok {
		return len(mp.holders)
	}
	return 0
}

// PoolsCreated counts every pool ever created by this manager.
func (m *ConnectionManager) PoolsCreated() int64 {
	return m.created.Load()
}

// cleanupLoop runs periodically until stopChan is closed.
func (m *ConnectionManager) cleanupLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup reaps idle connections above MinSize and destroys pools
// that nobody holds and nobody has used within IdleTimeout.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	pools := make([]*Pool, 0, len(m.pools))
	var orphans []*Pool
	for fp, mp := range m.pools {
		if len(mp.holders) == 0 && m.opts.IdleTimeout > 0 && now.Sub(mp.pool.idleSince()) > m.opts.IdleTimeout {
			orphans = append(orphans, mp.pool)
			delete(m.pools, fp)
			continue
		}
		pools = append(pools, mp.pool)
	}
	m.mu.Unlock()

	reaped := 0
	for _, p := range pools {
		reaped += p.reapIdle(now)
	}
	for _, p := range orphans {
		p.Evict()
		m.metrics.poolRemoved()
	}

	if reaped > 0 || len(orphans) > 0 {
		m.logger.Info("cleaned up idle connections",
			zap.Int("connections_closed", reaped),
			zap.Int("pools_destroyed", len(orphans)),
		)
	}
}

// Close evicts every pool and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopChan)
	pools := m.pools
	m.pools = make(map[models.Fingerprint]*managedPool)
	m.mu.Unlock()

	for _, mp := range pools {
		mp.pool.Evict()
		m.metrics.poolRemoved()
	}
	m.logger.Info("connection manager closed", zap.Int("pools_closed", len(pools)))
	return nil
}

// Stats returns a snapshot of every registered pool, sorted by fingerprint.
// Safe to call concurrently.
func (m *ConnectionManager) Stats() []PoolStats {
	m.mu.RLock()
	entries := make([]*managedPool, 0, len(m.pools))
	holders := make(map[*Pool]int, len(m.pools))
	for _, mp := range m.pools {
		entries = append(entries, mp)
		holders[mp.pool] = len(mp.holders)
	}
	m.mu.RUnlock()

	stats := make([]PoolStats, 0, len(entries))
	for _, mp := range entries {
		s := mp.pool.Stats()
		s.Holders = holders[mp.pool]
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Fingerprint < stats[j].Fingerprint })
	return stats
}
