package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id        TEXT PRIMARY KEY,
	store           TEXT NOT NULL,
	customer_name   TEXT NOT NULL,
	customer_phone  TEXT,
	delivery_method TEXT NOT NULL,
	address         TEXT,
	payment_method  TEXT,
	items           TEXT NOT NULL,
	subtotal        REAL NOT NULL,
	tax             REAL NOT NULL,
	total           REAL NOT NULL,
	created_at      TEXT NOT NULL
);
`

// SQLiteSink archives finalized orders into a local database, giving the
// store a queryable record independent of any remote collaborator.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the archive database at path.
func NewSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink sqlite: migrate: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Name implements Sink.
func (s *SQLiteSink) Name() string { return "sqlite" }

// Deliver implements Sink. Re-delivery of the same order id upserts rather
// than duplicating, keeping the archive idempotent across sink retries.
func (s *SQLiteSink) Deliver(ctx context.Context, record Record) error {
	items, err := json.Marshal(record.Items)
	if err != nil {
		return fmt.Errorf("sink sqlite: encode items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, store, customer_name, customer_phone,
			delivery_method, address, payment_method, items,
			subtotal, tax, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			items = excluded.items,
			subtotal = excluded.subtotal,
			tax = excluded.tax,
			total = excluded.total`,
		record.OrderID, record.Store, record.CustomerName, record.CustomerPhone,
		record.DeliveryMethod, record.Address, record.PaymentMethod, string(items),
		record.Subtotal, record.Tax, record.Total, record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("sink sqlite: insert: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
