package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/restaurant-orders/internal/domain/offer"
)

const (
	offerColumns = `o.id, o.title, o.discount_percent, o.active,
		COALESCE(ARRAY(SELECT oi.menu_item_id FROM offer_items oi WHERE oi.offer_id = o.id ORDER BY oi.menu_item_id), '{}')`

	findActiveOffersByMenuItemSQL = `SELECT ` + offerColumns + `
		FROM offers o
		WHERE o.active = TRUE
		  AND EXISTS (SELECT 1 FROM offer_items oi WHERE oi.offer_id = o.id AND oi.menu_item_id = $1)
		ORDER BY o.id`

	listActiveOffersSQL = `SELECT ` + offerColumns + ` FROM offers o WHERE o.active = TRUE ORDER BY o.id`

	upsertOfferSQL = `INSERT INTO offers (id, title, discount_percent, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			discount_percent = EXCLUDED.discount_percent,
			active = EXCLUDED.active`

	deleteOfferItemsSQL = `DELETE FROM offer_items WHERE offer_id = $1`

	insertOfferItemsSQL = `INSERT INTO offer_items (offer_id, menu_item_id)
		SELECT $1, unnest($2::text[])
		ON CONFLICT DO NOTHING`
)

var _ offer.Repository = (*OfferRepository)(nil)

// OfferRepository implements offer.Repository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// FindActiveByMenuItem returns every active offer that covers menuItemID.
func (r *OfferRepository) FindActiveByMenuItem(ctx context.Context, menuItemID string) ([]offer.Offer, error) {
	rows, err := r.pool.Query(ctx, findActiveOffersByMenuItemSQL, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("finding offers for menu item %q: %w", menuItemID, err)
	}
	return pgx.CollectRows(rows, scanOffer)
}

// ListActive returns all active offers.
func (r *OfferRepository) ListActive(ctx context.Context) ([]offer.Offer, error) {
	rows, err := r.pool.Query(ctx, listActiveOffersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active offers: %w", err)
	}
	return pgx.CollectRows(rows, scanOffer)
}

// Upsert inserts or replaces offers together with their menu item sets.
func (r *OfferRepository) Upsert(ctx context.Context, offers []offer.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, o := range offers {
			if _, err := tx.Exec(ctx, upsertOfferSQL, o.ID, o.Title, o.DiscountPercent, o.Active); err != nil {
				return fmt.Errorf("upserting offer %q: %w", o.ID, err)
			}
			if _, err := tx.Exec(ctx, deleteOfferItemsSQL, o.ID); err != nil {
				return fmt.Errorf("resetting items of offer %q: %w", o.ID, err)
			}
			if len(o.MenuItemIDs) == 0 {
				continue
			}
			if _, err := tx.Exec(ctx, insertOfferItemsSQL, o.ID, o.MenuItemIDs); err != nil {
				return fmt.Errorf("inserting items of offer %q: %w", o.ID, err)
			}
		}
		return nil
	})
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var o offer.Offer
	err := row.Scan(&o.ID, &o.Title, &o.DiscountPercent, &o.Active, &o.MenuItemIDs)
	return o, err
}
