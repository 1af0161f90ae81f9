package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	_ "github.com/lib/pq"
)

// Connect opens and pings a PostgreSQL connection.
func Connect(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store adapts the hosted order table: the bulk-read half of the feed
// contract plus the direct status-write path that goes around the pipeline.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const fetchOrdersQuery = `
SELECT id, customer_name, email, phone, address, city, postal_code, country,
       items, subtotal_cents, shipping_cents, tax_cents, total_cents,
       status, created_at, updated_at
FROM orders
ORDER BY created_at DESC`

// FetchOrders returns all current orders, created_at descending.
func (s *Store) FetchOrders(ctx context.Context) ([]order.Order, error) {
	rows, err := s.db.QueryContext(ctx, fetchOrdersQuery)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		var o order.Order
		var items []byte
		err := rows.Scan(
			&o.ID, &o.CustomerName, &o.Email, &o.Phone, &o.Address, &o.City,
			&o.PostalCode, &o.Country, &items, &o.SubtotalCents,
			&o.ShippingCents, &o.TaxCents, &o.TotalCents, &o.Status,
			&o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &o.Items); err != nil {
				// Items are display-only; a bad payload must not sink
				// the whole fetch.
				log.Printf("[Postgres] Bad items payload for order %s: %v", o.ID, err)
			}
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus writes a new status directly to the store. updated_at is
// bumped so the change event coming back over the feed wins the cache merge.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), orderID,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("order %s not found", orderID)
	}
	return nil
}
