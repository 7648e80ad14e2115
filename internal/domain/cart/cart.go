package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
)

var (
	// ErrEmptyItems is returned when an add request carries no lines.
	ErrEmptyItems = apperr.New(apperr.KindValidation, "items required")
	// ErrItemNotInCart is returned when updating a line the cart does not hold.
	ErrItemNotInCart = apperr.New(apperr.KindNotFound, "item not in cart")
	// ErrVersionConflict is returned by Repository.Save when the stored cart
	// changed since it was loaded.
	ErrVersionConflict = apperr.New(apperr.KindConflict, "cart was modified concurrently")
)

// MenuItemUnavailableError lists every requested menu item that is missing
// from the catalog or not currently available.
type MenuItemUnavailableError struct {
	MenuItemIDs []string
}

func (e *MenuItemUnavailableError) Error() string {
	return fmt.Sprintf("menu item unavailable: %s", strings.Join(e.MenuItemIDs, ", "))
}

// Kind classifies the error as a conflict with catalog state.
func (e *MenuItemUnavailableError) Kind() apperr.Kind { return apperr.KindConflict }

// MaxLineQuantity is the largest quantity a single cart line may hold.
const MaxLineQuantity = 999

// InvalidQuantityError indicates a requested or resulting line quantity
// outside 1..MaxLineQuantity.
type InvalidQuantityError struct {
	MenuItemID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for menu item %s", MaxLineQuantity, e.MenuItemID)
}

// Kind classifies the error as invalid input.
func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.KindValidation }

// Line is one menu item in a cart. The three price fields are frozen at the
// last write and refreshed on every add or update of the line.
type Line struct {
	MenuItemID      string
	Quantity        int
	PriceAtAddition decimal.Decimal
	OriginalPrice   decimal.Decimal
	DiscountApplied int

	// Item is populated on read and is never persisted.
	Item *menu.Item
}

// Cart is the per-user shopping cart document.
type Cart struct {
	UserID    string
	Lines     []Line
	Version   int64
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart holds no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Find returns the index of the line for menuItemID, or -1.
func (c *Cart) Find(menuItemID string) int {
	for i := range c.Lines {
		if c.Lines[i].MenuItemID == menuItemID {
			return i
		}
	}
	return -1
}

// Remove drops the line for menuItemID if present.
func (c *Cart) Remove(menuItemID string) {
	if i := c.Find(menuItemID); i >= 0 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	}
}

// Subtotal is Σ PriceAtAddition × Quantity.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.PriceAtAddition.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// Repository persists carts.
type Repository interface {
	// GetOrCreate returns the user's cart, inserting an empty one if absent.
	GetOrCreate(ctx context.Context, userID string) (*Cart, error)
	// Save writes c if the stored version still equals c.Version and bumps
	// c.Version on success. It returns ErrVersionConflict otherwise.
	Save(ctx context.Context, c *Cart) error
}
