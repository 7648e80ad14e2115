package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/restaurant-orders/internal/domain/cart"
	"github.com/xenking/restaurant-orders/internal/domain/order"
)

const (
	orderColumns = `id, user_id, lines, total, status, payment_method,
		customer_full_name, customer_email, delivery_address, phone_number,
		payment_session_id, expires_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	attachPaymentSessionSQL = `UPDATE orders
		SET payment_session_id = $2, updated_at = now()
		WHERE id = $1`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByPaymentSessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, expires_at = $3, updated_at = $4
		WHERE id = $1 AND status = $5`

	cancelOverdueOrdersSQL = `UPDATE orders
		SET status = 'cancelled', expires_at = NULL, updated_at = $1
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= $1`

	deleteOverdueOrdersSQL = `DELETE FROM orders
		WHERE status <> 'confirmed' AND expires_at IS NOT NULL AND expires_at <= $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Writes
// that must empty the owner's cart run in the same transaction as the order
// write.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The lines are serialized to JSON for storage
// in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertOrder(ctx, tx, o)
	})
}

// CreateAndClearCart persists o and empties the owner's cart in the same
// transaction. The cart must still be at cartVersion, otherwise the insert is
// rolled back and cart.ErrVersionConflict is returned.
func (r *OrderRepository) CreateAndClearCart(ctx context.Context, o *order.Order, cartVersion int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, clearCartAtVersionSQL, o.UserID, cartVersion)
		if err != nil {
			return fmt.Errorf("clearing cart of %q: %w", o.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrVersionConflict
		}
		return nil
	})
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}
	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, linesJSON, o.Total, string(o.Status), string(o.PaymentMethod),
		o.Customer.FullName, o.Customer.Email, o.Customer.DeliveryAddress, o.Customer.PhoneNumber,
		nullString(o.PaymentSessionID), o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Delete removes an order. Deleting a missing order is not an error.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderSQL, id); err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	return nil
}

// AttachPaymentSession records the provider session created for an order.
func (r *OrderRepository) AttachPaymentSession(ctx context.Context, id, sessionID string) error {
	tag, err := r.pool.Exec(ctx, attachPaymentSessionSQL, id, sessionID)
	if err != nil {
		return fmt.Errorf("attaching payment session to order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderSQL, id)
}

// GetByPaymentSession returns the order holding sessionID.
func (r *OrderRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByPaymentSessionSQL, sessionID)
}

// ListByUser returns the orders of userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus writes the status, deadline and update time of o if its stored
// status still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, from order.Status, clearCart bool) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL,
			o.ID, string(o.Status), o.ExpiresAt, o.UpdatedAt, string(from),
		)
		if err != nil {
			return fmt.Errorf("updating status of order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrStatusChanged
		}
		if clearCart {
			if _, err := tx.Exec(ctx, clearCartSQL, o.UserID); err != nil {
				return fmt.Errorf("clearing cart of %q: %w", o.UserID, err)
			}
		}
		return nil
	})
}

// ExpireOverdue cancels or deletes orders whose deadline is at or before now.
func (r *OrderRepository) ExpireOverdue(ctx context.Context, now time.Time, mode order.ExpiryMode) (int64, error) {
	query := cancelOverdueOrdersSQL
	if mode == order.ExpiryDelete {
		query = deleteOverdueOrdersSQL
	}

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expiring overdue orders (%s): %w", mode, err)
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		linesJSON     []byte
		status        string
		paymentMethod string
		sessionID     *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Total, &status, &paymentMethod,
		&o.Customer.FullName, &o.Customer.Email, &o.Customer.DeliveryAddress, &o.Customer.PhoneNumber,
		&sessionID, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling lines of order %q: %w", o.ID, err)
	}
	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(paymentMethod)
	if sessionID != nil {
		o.PaymentSessionID = *sessionID
	}
	return o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
