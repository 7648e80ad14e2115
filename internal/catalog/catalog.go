// Package catalog decodes menu and offer catalog exports used by the seed and
// ingest commands.
package catalog

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
)

// Record kinds of a JSONL export line.
const (
	KindMenuItem = "menu_item"
	KindOffer    = "offer"
)

// Catalog is a decoded set of menu items and offers.
type Catalog struct {
	Items  []menu.Item
	Offers []offer.Offer
}

// Record is one line of a JSONL export: exactly one of Item or Offer is set.
type Record struct {
	Item  *menu.Item
	Offer *offer.Offer
}

// ParseDocument decodes {"menu_items":[...],"offers":[...]} and validates
// every entry.
func ParseDocument(data []byte) (*Catalog, error) {
	var c Catalog
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "menu_items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeMenuItem(d)
				if err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		case "offers":
			return d.Arr(func(d *jx.Decoder) error {
				o, err := decodeOffer(d)
				if err != nil {
					return err
				}
				c.Offers = append(c.Offers, o)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DecodeRecord decodes one JSONL line of the form {"type":"menu_item",...}
// or {"type":"offer",...}.
func DecodeRecord(line []byte) (Record, error) {
	var rec Record

	kind, err := recordKind(line)
	if err != nil {
		return rec, errors.Wrap(err, "decode record type")
	}

	d := jx.DecodeBytes(line)
	switch kind {
	case KindMenuItem:
		it, err := decodeMenuItem(d)
		if err != nil {
			return rec, errors.Wrap(err, "decode menu item")
		}
		if err := validateItem(&it); err != nil {
			return rec, err
		}
		rec.Item = &it
	case KindOffer:
		o, err := decodeOffer(d)
		if err != nil {
			return rec, errors.Wrap(err, "decode offer")
		}
		if err := validateOffer(&o); err != nil {
			return rec, err
		}
		rec.Offer = &o
	default:
		return rec, errors.Errorf("unknown record type %q", kind)
	}
	return rec, nil
}

func recordKind(line []byte) (string, error) {
	var kind string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "type" {
			return d.Skip()
		}
		var err error
		kind, err = d.Str()
		return err
	})
	if err != nil {
		return "", err
	}
	if kind == "" {
		return "", errors.New("missing type")
	}
	return kind, nil
}

// Validate checks every item and offer.
func (c *Catalog) Validate() error {
	for i := range c.Items {
		if err := validateItem(&c.Items[i]); err != nil {
			return err
		}
	}
	for i := range c.Offers {
		if err := validateOffer(&c.Offers[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(it *menu.Item) error {
	switch {
	case it.ID == "":
		return errors.New("menu item without id")
	case it.Name == "":
		return errors.Errorf("menu item %q: name required", it.ID)
	case it.Price.IsNegative():
		return errors.Errorf("menu item %q: negative price", it.ID)
	case !it.Category.Valid():
		return errors.Errorf("menu item %q: unknown category %q", it.ID, it.Category)
	case it.Rating < 0 || it.Rating > 5:
		return errors.Errorf("menu item %q: rating out of range", it.ID)
	}
	return nil
}

func validateOffer(o *offer.Offer) error {
	switch {
	case o.ID == "":
		return errors.New("offer without id")
	case o.DiscountPercent < 1 || o.DiscountPercent > 100:
		return errors.Errorf("offer %q: discount percent must be within 1..100", o.ID)
	}
	return nil
}

func decodeMenuItem(d *jx.Decoder) (menu.Item, error) {
	it := menu.Item{Available: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			it.ID, err = d.Str()
		case "name":
			it.Name, err = d.Str()
		case "description":
			it.Description, err = d.Str()
		case "price":
			it.Price, err = decodeDecimal(d)
		case "category":
			var s string
			s, err = d.Str()
			it.Category = menu.Category(s)
		case "available":
			it.Available, err = d.Bool()
		case "rating":
			it.Rating, err = d.Float64()
		case "image_url":
			it.ImageURL, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodeOffer(d *jx.Decoder) (offer.Offer, error) {
	o := offer.Offer{Active: true}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = d.Str()
		case "title":
			o.Title, err = d.Str()
		case "discount_percent":
			o.DiscountPercent, err = d.Int()
		case "menu_item_ids":
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				if err != nil {
					return err
				}
				o.MenuItemIDs = append(o.MenuItemIDs, id)
				return nil
			})
		case "active":
			o.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	return o, err
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}
