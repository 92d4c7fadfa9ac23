package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/logging"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
	"github.com/ekaya-inc/ekaya-workspace/pkg/retry"
)

var errPoolEvicted = errors.New("pool has been evicted")

// PoolOptions sizes one pool.
type PoolOptions struct {
	MinSize       int
	MaxSize       int
	IdleTimeout   time.Duration
	BorrowTimeout time.Duration
}

// Pool lends connections to one physical database. Idle set, leased set and
// size are guarded by mu; slots holds one token per leased connection so a
// borrower at max size parks on the channel instead of polling.
type Pool struct {
	fingerprint models.Fingerprint
	dialect     Dialect
	schema      string
	db          *sqlx.DB
	opts        PoolOptions
	slots       chan struct{}
	logger      *zap.Logger
	metrics     *Metrics
	createdAt   time.Time

	mu       sync.Mutex
	idle     []*Conn
	leased   map[*Conn]struct{}
	size     int
	evicted  bool
	dbClosed bool
	lastUsed time.Time
}

// newPool opens max(MinSize, 1) connections, testing each with SELECT 1.
// If the first one fails the pool is torn down and the classified error
// returned; later failures only leave the pool smaller.
func newPool(ctx context.Context, fp models.Fingerprint, d Dialect, cfg models.ConnectionConfig, opts PoolOptions, metrics *Metrics, logger *zap.Logger) (*Pool, error) {
	db, err := openDB(d, cfg, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Pool{
		fingerprint: fp,
		dialect:     d,
		schema:      d.DefaultSchema(cfg),
		db:          db,
		opts:        opts,
		slots:       make(chan struct{}, opts.MaxSize),
		logger:      logger.With(zap.String("fingerprint", fp.Short()), zap.String("db_type", string(d.Type()))),
		metrics:     metrics,
		createdAt:   now,
		leased:      make(map[*Conn]struct{}),
		lastUsed:    now,
	}

	eager := opts.MinSize
	if eager < 1 {
		eager = 1
	}
	for i := 0; i < eager; i++ {
		c, err := p.dial(ctx)
		if err != nil {
			if i == 0 {
				p.closeAll()
				return nil, err
			}
			p.logger.Warn("eager connection failed, pool will grow lazily",
				zap.Int("opened", i),
				zap.Int("min_size", opts.MinSize),
				zap.String("error", logging.SanitizeError(err)),
			)
			break
		}
		p.mu.Lock()
		p.size++
		p.idle = append(p.idle, c)
		p.mu.Unlock()
	}

	return p, nil
}

// dial opens and tests one physical connection, retrying a transient
// failure once. Authentication failures are returned on the first attempt.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	raw, err := retry.DoWithResultIf(ctx, retry.ConnectConfig(), shouldRetryConnect(p.dialect), func() (*sqlx.Conn, error) {
		conn, err := p.db.Connx(ctx)
		if err != nil {
			return nil, err
		}
		var one int
		if err := conn.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, apperrorsWithFingerprint(classifyConnectError(p.dialect, err), p.fingerprint)
	}

	now := time.Now()
	return &Conn{conn: raw, pool: p, createdAt: now, lastUsed: now}, nil
}

func apperrorsWithFingerprint(err error, fp models.Fingerprint) error {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return ae.WithFingerprint(fp.String())
	}
	return err
}

// Borrow leases a connection: an idle one if available, a new one if the
// pool is below MaxSize, otherwise it waits up to BorrowTimeout for a
// release and then fails with PoolExhausted.
func (p *Pool) Borrow(ctx context.Context) (*Conn, error) {
	start := time.Now()
	if err := p.acquireSlot(ctx); err != nil {
		p.metrics.observeBorrow(borrowResult(err), time.Since(start))
		return nil, err
	}

	p.mu.Lock()
	if p.evicted {
		p.mu.Unlock()
		<-p.slots
		p.metrics.observeBorrow("error", time.Since(start))
		return nil, apperrors.New(apperrors.ErrConnection, errPoolEvicted).WithFingerprint(p.fingerprint.String())
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.leased[c] = struct{}{}
		p.lastUsed = time.Now()
		p.mu.Unlock()
		p.metrics.observeBorrow("ok", time.Since(start))
		return c, nil
	}
	// Reserve the size before dialing so concurrent borrowers see it.
	p.size++
	p.mu.Unlock()

	c, err := p.dial(ctx)

	p.mu.Lock()
	if err != nil {
		p.size--
		p.mu.Unlock()
		<-p.slots
		p.metrics.observeBorrow("error", time.Since(start))
		return nil, err
	}
	if p.evicted {
		p.size--
		closeDB := p.markDBClosedLocked()
		p.mu.Unlock()
		_ = c.conn.Close()
		<-p.slots
		if closeDB {
			p.closeDB()
		}
		p.metrics.observeBorrow("error", time.Since(start))
		return nil, apperrors.New(apperrors.ErrConnection, errPoolEvicted).WithFingerprint(p.fingerprint.String())
	}
	p.leased[c] = struct{}{}
	p.lastUsed = time.Now()
	p.mu.Unlock()

	p.metrics.observeBorrow("ok", time.Since(start))
	return c, nil
}

func (p *Pool) acquireSlot(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(p.opts.BorrowTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return apperrors.New(apperrors.ErrPoolExhausted,
			fmt.Errorf("all %d connections leased for %s", p.opts.MaxSize, p.opts.BorrowTimeout)).
			WithFingerprint(p.fingerprint.String())
	case <-ctx.Done():
		return ctx.Err()
	}
}

func borrowResult(err error) string {
	if errors.Is(err, apperrors.ErrPoolExhausted) {
		return "exhausted"
	}
	return "error"
}

// Release returns c to the idle set. A broken connection, or any connection
// of an evicted pool, is closed instead. Releasing twice is a no-op.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.leased[c]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.leased, c)

	now := time.Now()
	p.lastUsed = now
	discard := c.broken.Load() || p.evicted
	if discard {
		p.size--
	} else {
		c.lastUsed = now
		p.idle = append(p.idle, c)
	}
	closeDB := p.markDBClosedLocked()
	p.mu.Unlock()

	if discard {
		if c.broken.Load() {
			p.metrics.connectionDiscarded()
			p.logger.Debug("discarded broken connection")
		}
		_ = c.conn.Close()
	}
	<-p.slots
	if closeDB {
		p.closeDB()
	}
}

// Evict closes idle connections and refuses new borrows. Leased connections
// are closed as they are released; the driver handle closes with the last one.
func (p *Pool) Evict() {
	p.mu.Lock()
	if p.evicted {
		p.mu.Unlock()
		return
	}
	p.evicted = true
	idle := p.idle
	p.idle = nil
	p.size -= len(idle)
	leased := len(p.leased)
	closeDB := p.markDBClosedLocked()
	p.mu.Unlock()

	for _, c := range idle {
		_ = c.conn.Close()
	}
	if closeDB {
		p.closeDB()
	}
	p.logger.Info("evicted pool",
		zap.Int("closed_idle", len(idle)),
		zap.Int("still_leased", leased),
	)
}

// markDBClosedLocked reports whether the caller should close the driver
// handle now. Caller must hold p.mu.
func (p *Pool) markDBClosedLocked() bool {
	if p.evicted && p.size == 0 && !p.dbClosed {
		p.dbClosed = true
		return true
	}
	return false
}

func (p *Pool) closeDB() {
	if err := p.db.Close(); err != nil {
		p.logger.Warn("failed to close driver handle", zap.String("error", logging.SanitizeError(err)))
	}
}

// closeAll is used when creation fails before the pool was ever shared.
func (p *Pool) closeAll() {
	p.mu.Lock()
	p.evicted = true
	idle := p.idle
	p.idle = nil
	p.size = 0
	p.dbClosed = true
	p.mu.Unlock()
	for _, c := range idle {
		_ = c.conn.Close()
	}
	p.closeDB()
}

// Test borrows one connection, runs a round-trip and releases it. A pool
// whose every slot is leased counts as alive: those leases were dialed and
// tested against the same target.
func (p *Pool) Test(ctx context.Context) bool {
	if p.IsEvicted() {
		return false
	}
	if p.saturated() {
		p.logger.Debug("liveness check skipped, all connections leased")
		return true
	}

	c, err := p.Borrow(ctx)
	if errors.Is(err, apperrors.ErrPoolExhausted) {
		return true
	}
	if err != nil {
		p.logger.Warn("liveness check could not borrow", zap.String("error", logging.SanitizeError(err)))
		return false
	}
	defer p.Release(c)

	if err := c.Ping(ctx); err != nil {
		p.logger.Warn("liveness check failed", zap.String("error", logging.SanitizeError(err)))
		return false
	}
	return true
}

// saturated reports whether every slot is currently leased.
func (p *Pool) saturated() bool {
	return len(p.slots) == cap(p.slots)
}

// reapIdle closes idle connections unused for IdleTimeout while keeping
// MinSize open. Returns how many were closed.
func (p *Pool) reapIdle(now time.Time) int {
	if p.opts.IdleTimeout <= 0 {
		return 0
	}

	p.mu.Lock()
	var keep, reap []*Conn
	for _, c := range p.idle {
		if p.size-len(reap) > p.opts.MinSize && now.Sub(c.lastUsed) > p.opts.IdleTimeout {
			reap = append(reap, c)
			continue
		}
		keep = append(keep, c)
	}
	p.idle = keep
	p.size -= len(reap)
	p.mu.Unlock()

	for _, c := range reap {
		_ = c.conn.Close()
	}
	return len(reap)
}

// Fingerprint identifies the target this pool serves.
func (p *Pool) Fingerprint() models.Fingerprint { return p.fingerprint }

// Dialect is the capability set of the pool's engine.
func (p *Pool) Dialect() Dialect { return p.dialect }

// IsEvicted reports whether the pool refuses new borrows.
func (p *Pool) IsEvicted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evicted
}

func (p *Pool) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.leased) > 0 {
		return time.Now()
	}
	return p.lastUsed
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Fingerprint:  p.fingerprint.String(),
		DatabaseType: string(p.dialect.Type()),
		Size:         p.size,
		Idle:         len(p.idle),
		Leased:       len(p.leased),
		MinSize:      p.opts.MinSize,
		MaxSize:      p.opts.MaxSize,
		Evicted:      p.evicted,
		CreatedAt:    p.createdAt,
		LastUsed:     p.lastUsed,
	}
}

// PoolStats is a point-in-time view of one pool.
type PoolStats struct {
	Fingerprint  string    `json:"fingerprint"`
	DatabaseType string    `json:"db_type"`
	Size         int       `json:"size"`
	Idle         int       `json:"idle"`
	Leased       int       `json:"leased"`
	MinSize      int       `json:"min_size"`
	MaxSize      int       `json:"max_size"`
	Holders      int       `json:"holders"`
	Evicted      bool      `json:"evicted"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsed     time.Time `json:"last_used"`
}

// Conn is one leased physical connection. It is used by a single caller
// between Borrow and Release. Query errors that mean the connection is gone
// mark it broken so Release discards it.
type Conn struct {
	conn      *sqlx.Conn
	pool      *Pool
	createdAt time.Time
	lastUsed  time.Time // guarded by pool.mu
	broken    atomic.Bool
}

// QueryContext implements sqlx.QueryerContext.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	return rows, c.Observe(err)
}

// QueryxContext implements sqlx.QueryerContext.
func (c *Conn) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	rows, err := c.conn.QueryxContext(ctx, query, args...)
	return rows, c.Observe(err)
}

// QueryRowxContext implements sqlx.QueryerContext.
func (c *Conn) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	row := c.conn.QueryRowxContext(ctx, query, args...)
	_ = c.Observe(row.Err())
	return row
}

// Rebind converts '?' placeholders to the driver's bind style.
func (c *Conn) Rebind(query string) string {
	return c.conn.Rebind(query)
}

// Ping runs a trivial round-trip.
func (c *Conn) Ping(ctx context.Context) error {
	var one int
	return c.Observe(c.conn.QueryRowxContext(ctx, "SELECT 1").Scan(&one))
}

// Observe marks the connection broken when err indicates connection loss
// and returns err unchanged.
func (c *Conn) Observe(err error) error {
	if IsConnectionLoss(err) {
		c.broken.Store(true)
	}
	return err
}

// MarkBroken forces the connection to be discarded on release.
func (c *Conn) MarkBroken() { c.broken.Store(true) }

// Broken reports whether the connection will be discarded on release.
func (c *Conn) Broken() bool { return c.broken.Load() }

// Dialect is the capability set of the connection's engine.
func (c *Conn) Dialect() Dialect { return c.pool.dialect }

// DefaultSchema is the schema used when a caller names none.
func (c *Conn) DefaultSchema() string { return c.pool.schema }

// Release returns the connection to its pool.
func (c *Conn) Release() { c.pool.Release(c) }
