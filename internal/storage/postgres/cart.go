package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/cart"
)

const (
	getCartSQL = `SELECT lines, version, updated_at FROM carts WHERE user_id = $1`

	// The no-op update makes a racing insert return the winner's row
	// instead of nothing.
	createCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING lines, version, updated_at`

	saveCartSQL = `UPDATE carts
		SET lines = $2, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $3
		RETURNING version, updated_at`

	clearCartSQL = `UPDATE carts
		SET lines = '[]', version = version + 1, updated_at = now()
		WHERE user_id = $1`

	clearCartAtVersionSQL = `UPDATE carts
		SET lines = '[]', version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $2`
)

// cartLineRow is the JSONB shape of a cart line.
type cartLineRow struct {
	MenuItemID      string          `json:"menu_item_id"`
	Quantity        int             `json:"quantity"`
	PriceAtAddition decimal.Decimal `json:"price_at_addition"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountApplied int             `json:"discount_applied"`
}

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Each cart
// is a single row whose lines live in a JSONB column guarded by a version
// counter.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreate returns the cart of userID, inserting an empty one if absent.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		raw []byte
		c   = cart.Cart{UserID: userID}
	)
	err := r.pool.QueryRow(ctx, getCartSQL, userID).Scan(&raw, &c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.pool.QueryRow(ctx, createCartSQL, userID).Scan(&raw, &c.Version, &c.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("loading cart of %q: %w", userID, err)
	}

	lines, err := decodeCartLines(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding cart of %q: %w", userID, err)
	}
	c.Lines = lines
	return &c, nil
}

// Save writes c when the stored version equals c.Version. On success
// c.Version and c.UpdatedAt reflect the new row.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	raw, err := encodeCartLines(c.Lines)
	if err != nil {
		return fmt.Errorf("encoding cart of %q: %w", c.UserID, err)
	}

	var (
		version   int64
		updatedAt time.Time
	)
	err = r.pool.QueryRow(ctx, saveCartSQL, c.UserID, raw, c.Version).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrVersionConflict
		}
		return fmt.Errorf("saving cart of %q: %w", c.UserID, err)
	}

	c.Version = version
	c.UpdatedAt = updatedAt
	return nil
}

func encodeCartLines(lines []cart.Line) ([]byte, error) {
	rows := make([]cartLineRow, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, cartLineRow{
			MenuItemID:      l.MenuItemID,
			Quantity:        l.Quantity,
			PriceAtAddition: l.PriceAtAddition,
			OriginalPrice:   l.OriginalPrice,
			DiscountApplied: l.DiscountApplied,
		})
	}
	return json.Marshal(rows)
}

func decodeCartLines(raw []byte) ([]cart.Line, error) {
	var rows []cartLineRow
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
	}

	lines := make([]cart.Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, cart.Line{
			MenuItemID:      row.MenuItemID,
			Quantity:        row.Quantity,
			PriceAtAddition: row.PriceAtAddition,
			OriginalPrice:   row.OriginalPrice,
			DiscountApplied: row.DiscountApplied,
		})
	}
	return lines, nil
}
