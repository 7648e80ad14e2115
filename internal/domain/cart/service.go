package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
)

// maxSaveAttempts bounds the optimistic retry loop of a single mutation.
const maxSaveAttempts = 3

// AddItem is one requested line of an add call.
type AddItem struct {
	MenuItemID string
	Quantity   int
}

// Service is the cart engine: it owns every cart mutation and stamps each
// line with the live price and best offer at write time.
type Service struct {
	carts  Repository
	menu   menu.Repository
	offers offer.Resolver
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(carts Repository, catalog menu.Repository, offers offer.Resolver) *Service {
	return &Service{
		carts:  carts,
		menu:   catalog,
		offers: offers,
	}
}

// Get returns the user's cart, creating an empty one on first access. Lines
// whose menu item no longer exists are left out of the result.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "load cart")
	}
	return s.hydrate(ctx, c)
}

// AddItems validates and prices every requested line, then merges them into
// the cart. If any menu item is missing or unavailable nothing is written.
func (s *Service) AddItems(ctx context.Context, userID string, items []AddItem) (*Cart, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	// Collapse duplicate ids so each menu item is priced once.
	qty := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > MaxLineQuantity {
			return nil, &InvalidQuantityError{MenuItemID: item.MenuItemID}
		}
		if _, ok := qty[item.MenuItemID]; !ok {
			ids = append(ids, item.MenuItemID)
		}
		// Both operands are capped, so the sum cannot overflow.
		qty[item.MenuItemID] += item.Quantity
		if qty[item.MenuItemID] > MaxLineQuantity {
			return nil, &InvalidQuantityError{MenuItemID: item.MenuItemID}
		}
	}

	quotes, err := s.quote(ctx, ids)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(c *Cart) error {
		for _, id := range ids {
			q := quotes[id]
			if i := c.Find(id); i >= 0 {
				l := &c.Lines[i]
				if l.Quantity > MaxLineQuantity-qty[id] {
					return &InvalidQuantityError{MenuItemID: id}
				}
				l.Quantity += qty[id]
				setPrice(l, q)
				continue
			}
			l := Line{MenuItemID: id, Quantity: qty[id]}
			setPrice(&l, q)
			c.Lines = append(c.Lines, l)
		}
		return nil
	})
}

// UpdateQuantity refreshes a line with the given quantity and the current
// price and offer. A quantity below 1 removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, menuItemID string, quantity int) (*Cart, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, userID, menuItemID)
	}
	if quantity > MaxLineQuantity {
		return nil, &InvalidQuantityError{MenuItemID: menuItemID}
	}

	current, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "load cart")
	}
	if current.Find(menuItemID) < 0 {
		return nil, ErrItemNotInCart
	}

	quotes, err := s.quote(ctx, []string{menuItemID})
	if err != nil {
		return nil, err
	}
	q := quotes[menuItemID]

	return s.mutate(ctx, userID, func(c *Cart) error {
		i := c.Find(menuItemID)
		if i < 0 {
			return ErrItemNotInCart
		}
		c.Lines[i].Quantity = quantity
		setPrice(&c.Lines[i], q)
		return nil
	})
}

// RemoveItem drops the line for menuItemID. Removing an absent line is not
// an error.
func (s *Service) RemoveItem(ctx context.Context, userID, menuItemID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.Remove(menuItemID)
		return nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID string) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.Lines = nil
		return nil
	})
}

// mutate runs a read-modify-write cycle guarded by the cart version. On a
// concurrent write the cart is reloaded and fn is applied again.
func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Cart) error) (*Cart, error) {
	for attempt := 1; ; attempt++ {
		c, err := s.carts.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, apperr.Persistence(err, "load cart")
		}
		if err := fn(c); err != nil {
			return nil, err
		}

		err = s.carts.Save(ctx, c)
		switch {
		case err == nil:
			return s.hydrate(ctx, c)
		case errors.Is(err, ErrVersionConflict):
			if attempt >= maxSaveAttempts {
				return nil, ErrVersionConflict
			}
		default:
			return nil, apperr.Persistence(err, "save cart")
		}
	}
}

// quote loads the menu items for ids, rejects the whole batch if any is
// missing or unavailable, and prices each one under its best offer.
func (s *Service) quote(ctx context.Context, ids []string) (map[string]offer.Quote, error) {
	items, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(err, "load menu items")
	}
	byID := menu.Index(items)

	var unavailable []string
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || !item.Available {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &MenuItemUnavailableError{MenuItemIDs: unavailable}
	}

	quotes := make(map[string]offer.Quote, len(ids))
	for _, id := range ids {
		best, err := s.offers.BestFor(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve offer for %s", id)
		}
		quotes[id] = offer.QuoteFor(byID[id].Price, best)
	}
	return quotes, nil
}

// hydrate attaches menu items to the cart lines and filters out lines whose
// item is gone from the catalog. The stored cart is not modified.
func (s *Service) hydrate(ctx context.Context, c *Cart) (*Cart, error) {
	out := *c
	out.Lines = nil
	if len(c.Lines) == 0 {
		return &out, nil
	}

	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.MenuItemID
	}
	items, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence(err, "load menu items")
	}
	byID := menu.Index(items)

	out.Lines = make([]Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		item, ok := byID[l.MenuItemID]
		if !ok {
			continue
		}
		l.Item = item
		out.Lines = append(out.Lines, l)
	}
	return &out, nil
}

func setPrice(l *Line, q offer.Quote) {
	l.PriceAtAddition = q.Final
	l.OriginalPrice = q.Original
	l.DiscountApplied = q.DiscountPercent
}
