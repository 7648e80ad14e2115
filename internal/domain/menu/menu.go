package menu

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = apperr.New(apperr.KindNotFound, "menu item not found")

// Category is the fixed set of menu sections.
type Category string

const (
	CategoryMeal      Category = "meal"
	CategoryAppetizer Category = "appetizer"
	CategoryDessert   Category = "dessert"
	CategoryDrink     Category = "drink"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryMeal, CategoryAppetizer, CategoryDessert, CategoryDrink:
		return true
	default:
		return false
	}
}

// Item is a catalog entry. Price is the canonical, undiscounted unit price.
type Item struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    Category
	Available   bool
	Rating      float64
	ImageURL    string
}

// Repository defines read operations for the menu catalog.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByID(ctx context.Context, id string) (*Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}

// Index maps items by ID.
func Index(items []Item) map[string]*Item {
	m := make(map[string]*Item, len(items))
	for i := range items {
		m[items[i].ID] = &items[i]
	}
	return m
}
