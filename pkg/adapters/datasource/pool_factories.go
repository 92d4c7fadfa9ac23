package datasource

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ekaya-inc/ekaya-workspace/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// openDB prepares the driver handle behind a Pool. database/sql keeps no
// idle connections of its own: every *sql.Conn the Pool closes is closed
// physically, so the Pool's idle set is the only one.
func openDB(d Dialect, cfg models.ConnectionConfig, opts PoolOptions) (*sqlx.DB, error) {
	dsn, err := d.DSN(cfg)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, fmt.Errorf("failed to build connection string: %w", err))
	}

	connector, err := newDialConnector(d.DriverName(), dsn)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidConfig, fmt.Errorf("failed to open %s driver: %w", d.DriverName(), err))
	}

	db := sqlx.NewDb(sql.OpenDB(connector), d.DriverName())
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(opts.MaxSize)
	return db, nil
}

// dialConnector opens physical connections for one DSN. database/sql redials
// up to three times when Connect returns driver.ErrBadConn; dialConnector
// masks that error so Pool.dial is the only place a dial is retried.
type dialConnector struct {
	driver.Connector
}

func newDialConnector(driverName, dsn string) (*dialConnector, error) {
	// sql.Open only resolves the driver; it never connects.
	resolver, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	drv := resolver.Driver()
	_ = resolver.Close()

	if dc, ok := drv.(driver.DriverContext); ok {
		c, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		return &dialConnector{Connector: c}, nil
	}
	return &dialConnector{Connector: dsnConnector{dsn: dsn, driver: drv}}, nil
}

func (c *dialConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if errors.Is(err, driver.ErrBadConn) {
		return nil, &dialError{err: err}
	}
	return conn, err
}

// dsnConnector adapts a driver without DriverContext.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) { return c.driver.Open(c.dsn) }
func (c dsnConnector) Driver() driver.Driver                        { return c.driver }

// dialError is a transient dial failure. It has no Unwrap, so database/sql
// never sees driver.ErrBadConn.
type dialError struct {
	err error
}

func (e *dialError) Error() string     { return e.err.Error() }
func (e *dialError) IsRetryable() bool { return true }
