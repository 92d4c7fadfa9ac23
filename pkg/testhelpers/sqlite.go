package testhelpers

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // "sqlite" driver for fixture setup

	"github.com/ekaya-inc/ekaya-workspace/pkg/models"
)

// OrdersFixture is a table with no primary key, ten rows and a
// customer_id column that is entirely null.
var OrdersFixture = []string{
	`CREATE TABLE orders (
		order_number TEXT NOT NULL,
		customer_id  INTEGER,
		amount       NUMERIC NOT NULL,
		status       TEXT NOT NULL
	)`,
	`INSERT INTO orders (order_number, customer_id, amount, status) VALUES
		('A-001', NULL, 10, 'paid'),
		('A-002', NULL, 20, 'paid'),
		('A-003', NULL, 30, 'paid'),
		('A-004', NULL, 40, 'refunded'),
		('A-005', NULL, 50, 'paid'),
		('A-006', NULL, 60, 'pending'),
		('A-007', NULL, 70, 'paid'),
		('A-008', NULL, 80, 'pending'),
		('A-009', NULL, 90, 'paid'),
		('A-010', NULL, 100, 'paid')`,
}

// StoreFixture is a small normalized schema with declared and
// convention-only relationships.
var StoreFixture = []string{
	`CREATE TABLE customers (
		id    INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name  TEXT
	)`,
	`CREATE TABLE products (
		sku   TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		price REAL NOT NULL
	)`,
	`CREATE TABLE purchases (
		id          INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		sku         TEXT,
		quantity    INTEGER NOT NULL,
		note        TEXT
	)`,
	`CREATE INDEX idx_purchases_customer ON purchases(customer_id)`,
	`INSERT INTO customers (id, email, name) VALUES
		(1, 'ada@example.com', 'Ada'),
		(2, 'grace@example.com', 'Grace'),
		(3, 'linus@example.com', NULL)`,
	`INSERT INTO products (sku, title, price) VALUES
		('SKU-1', 'Widget', 2.5),
		('SKU-2', 'Gadget', 10)`,
	`INSERT INTO purchases (id, customer_id, sku, quantity, note) VALUES
		(1, 1, 'SKU-1', 2, NULL),
		(2, 1, 'SKU-2', 1, NULL),
		(3, 2, 'SKU-1', 5, NULL),
		(4, 3, 'SKU-1', 1, 'gift')`,
}

// NewSQLiteDB creates a database file under t.TempDir(), runs statements
// against it and returns a config pointing at it.
func NewSQLiteDB(t *testing.T, statements ...string) models.ConnectionConfig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.db")
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open sqlite fixture: %v", err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("fixture statement failed: %v\n%s", err, stmt)
		}
	}

	return models.ConnectionConfig{Type: models.DatabaseTypeSQLite, FilePath: path}
}

// InsertRows appends n rows built by row(i) to table in the fixture at cfg.
func InsertRows(t *testing.T, cfg models.ConnectionConfig, table string, n int, row func(i int) []any) {
	t.Helper()

	db, err := sqlx.Open("sqlite", cfg.FilePath)
	if err != nil {
		t.Fatalf("failed to open sqlite fixture: %v", err)
	}
	defer db.Close()

	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("failed to begin fixture insert: %v", err)
	}
	for i := 0; i < n; i++ {
		values := row(i)
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		if _, err := tx.Exec(fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, placeholders), values...); err != nil {
			_ = tx.Rollback()
			t.Fatalf("fixture insert failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit fixture insert: %v", err)
	}
}
