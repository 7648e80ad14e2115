package offer

import (
	"context"

	"github.com/xenking/restaurant-orders/internal/domain/apperr"
)

// Resolver returns the single best active offer for a menu item.
type Resolver interface {
	BestFor(ctx context.Context, menuItemID string) (*Offer, error)
}

// RepoResolver implements Resolver on top of a Repository.
type RepoResolver struct {
	repo Repository
}

// NewRepoResolver creates a RepoResolver backed by the given Repository.
func NewRepoResolver(repo Repository) *RepoResolver {
	return &RepoResolver{repo: repo}
}

// BestFor returns the active offer with the highest discount percent, or nil
// when none applies. Ties go to the lexicographically smallest offer ID.
func (r *RepoResolver) BestFor(ctx context.Context, menuItemID string) (*Offer, error) {
	offers, err := r.repo.FindActiveByMenuItem(ctx, menuItemID)
	if err != nil {
		return nil, apperr.Persistence(err, "lookup offers")
	}
	return Best(offers), nil
}

// Best picks the winning offer from candidates. Inactive offers are skipped.
func Best(candidates []Offer) *Offer {
	var best *Offer
	for i := range candidates {
		o := &candidates[i]
		if !o.Active {
			continue
		}
		if best == nil ||
			o.DiscountPercent > best.DiscountPercent ||
			(o.DiscountPercent == best.DiscountPercent && o.ID < best.ID) {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}
