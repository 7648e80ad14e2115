package offer

import (
	"context"
)

// Offer is a promotional discount applied to a set of menu items.
type Offer struct {
	ID              string
	Title           string
	DiscountPercent int
	MenuItemIDs     []string
	Active          bool
}

// Repository provides read access to the offer catalog.
type Repository interface {
	// FindActiveByMenuItem returns every active offer whose item set
	// contains menuItemID, in no particular order.
	FindActiveByMenuItem(ctx context.Context, menuItemID string) ([]Offer, error)
	ListActive(ctx context.Context) ([]Offer, error)
}
