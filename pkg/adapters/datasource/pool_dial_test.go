package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

var errRejected = errors.New("password authentication failed for user \"reader\"")

// scriptedDriver counts Open calls and fails them as script dictates.
type scriptedDriver struct {
	mu     sync.Mutex
	opens  int
	script func(attempt int) error
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) {
	d.mu.Lock()
	d.opens++
	attempt := d.opens
	d.mu.Unlock()

	if err := d.script(attempt); err != nil {
		return nil, err
	}
	return scriptedConn{}, nil
}

func (d *scriptedDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

type scriptedConn struct{}

func (scriptedConn) Prepare(string) (driver.Stmt, error) { return scriptedStmt{}, nil }
func (scriptedConn) Close() error                        { return nil }
func (scriptedConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

type scriptedStmt struct{}

func (scriptedStmt) Close() error                               { return nil }
func (scriptedStmt) NumInput() int                              { return 0 }
func (scriptedStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(0), nil }
func (scriptedStmt) Query([]driver.Value) (driver.Rows, error)  { return &oneRow{}, nil }

// oneRow answers SELECT 1.
type oneRow struct{ done bool }

func (*oneRow) Columns() []string { return []string{"1"} }
func (*oneRow) Close() error      { return nil }
func (r *oneRow) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = int64(1)
	return nil
}

var scriptedDrivers atomic.Int64

// scriptedDialect routes a pool to a freshly registered scriptedDriver.
type scriptedDialect struct {
	fileDialect
	name string
}

func (d scriptedDialect) Type() models.DatabaseType                  { return models.DatabaseType(d.name) }
func (d scriptedDialect) DriverName() string                         { return d.name }
func (scriptedDialect) ValidateConfig(models.ConnectionConfig) error { return nil }
func (scriptedDialect) DSN(models.ConnectionConfig) (string, error) {
	return "scripted", nil
}
func (scriptedDialect) IsAuthError(err error) bool { return errors.Is(err, errRejected) }

// registerScripted registers a driver and dialect pair under a unique name
// and returns a config that selects them.
func registerScripted(script func(attempt int) error) (models.ConnectionConfig, scriptedDialect, *scriptedDriver) {
	drv := &scriptedDriver{script: script}
	name := fmt.Sprintf("scripted-%d", scriptedDrivers.Add(1))
	sql.Register(name, drv)

	d := scriptedDialect{name: name}
	Register(DialectRegistration{Info: DialectInfo{Type: d.Type(), DisplayName: name}, Dialect: d})
	return models.ConnectionConfig{Type: d.Type(), Host: name}, d, drv
}

func newScriptedPool(t *testing.T, script func(attempt int) error) (*Pool, *scriptedDriver, error) {
	t.Helper()
	cfg, d, drv := registerScripted(script)

	opts := PoolOptions{MinSize: 1, MaxSize: 2, BorrowTimeout: time.Second}
	pool, err := newPool(context.Background(), cfg.Fingerprint(), d, cfg, opts, NewMetrics(nil), zaptest.NewLogger(t))
	if pool != nil {
		t.Cleanup(pool.Evict)
	}
	return pool, drv, err
}

func TestPoolDial_AuthRejectionIsNotRetried(t *testing.T) {
	_, drv, err := newScriptedPool(t, func(int) error { return errRejected })

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.Equal(t, "authentication_error", apperrors.Code(err))
	assert.Equal(t, 1, drv.Opens())
}

func TestPoolDial_TransientFailureRetriedOnce(t *testing.T) {
	pool, drv, err := newScriptedPool(t, func(attempt int) error {
		if attempt == 1 {
			return driver.ErrBadConn
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, drv.Opens())
	assert.Equal(t, 1, pool.Stats().Size)
}

func TestPoolDial_PersistentBadConnDialsTwice(t *testing.T) {
	_, drv, err := newScriptedPool(t, func(int) error { return driver.ErrBadConn })

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Equal(t, 2, drv.Opens(), "database/sql must not add redials of its own")
}

func TestPoolDial_RefusedConnectionRetriedOnce(t *testing.T) {
	_, drv, err := newScriptedPool(t, func(int) error { return errors.New("dial tcp 10.0.0.1:5432: connect: connection refused") })

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Equal(t, 2, drv.Opens())
}

func TestConnectionManager_CanceledCreatorDoesNotFailWaiters(t *testing.T) {
	gate := make(chan struct{})
	cfg, _, drv := registerScripted(func(int) error {
		<-gate
		return nil
	})
	m := newTestManager(t, PoolOptions{MinSize: 1, MaxSize: 2})
	fp := cfg.Fingerprint()

	creatorCtx, cancel := context.WithCancel(context.Background())
	creatorErr := make(chan error, 1)
	go func() {
		_, err := m.AcquirePool(creatorCtx, fp, cfg, "ws-creator")
		creatorErr <- err
	}()
	require.Eventually(t, func() bool { return drv.Opens() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-creatorErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller stayed blocked on the shared creation")
	}

	waiterErr := make(chan error, 1)
	go func() {
		_, err := m.AcquirePool(context.Background(), fp, cfg, "ws-waiter")
		waiterErr <- err
	}()
	close(gate)

	select {
	case err := <-waiterErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never got the pool")
	}
	assert.Equal(t, int64(1), m.PoolsCreated())
	assert.Equal(t, 1, drv.Opens())
	assert.Equal(t, 1, m.Holders(fp), "only the waiter holds the pool")
}
