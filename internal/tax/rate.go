package tax

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/skatt/internal/domain"
)

// Table resolves the applicable rate set for a (zone, category, date)
// tuple. Selection is a pure function over explicit criteria: validity
// window first, then category-specific beats category-agnostic, then
// priority descending, then most recent creation. No inheritance across
// zones: a rate applies only to the zone it is attached to.
type Table struct {
	store RateStore

	// compound enables additive multi-rate jurisdictions. When false the
	// single winning rate is returned regardless of Stacks flags.
	compound bool
}

// NewTable creates a rate table backed by the given store.
func NewTable(store RateStore, compound bool) *Table {
	return &Table{store: store, compound: compound}
}

// ResolveRates returns the ordered set of rates applicable to the zone and
// category on the given date. The first rate is always the winner; further
// entries are present only in compound mode for rates flagged as stacking.
// Returns ErrRateNotFound when no rate covers the tuple.
func (t *Table) ResolveRates(ctx context.Context, zone *domain.TaxZone, category *domain.TaxCategory, asOf time.Time) ([]domain.TaxRate, error) {
	all, err := t.store.RatesByZone(ctx, zone.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rates for zone %s: %w", zone.Code, err)
	}

	candidates := make([]domain.TaxRate, 0, len(all))
	for _, rate := range all {
		if !rate.InEffect(asOf) {
			continue
		}
		if rate.CategoryID != nil {
			if category == nil || *rate.CategoryID != category.ID {
				continue
			}
		}
		candidates = append(candidates, rate)
	}

	if len(candidates) == 0 {
		return nil, ErrRateNotFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		// Category-specific rates beat zone-wide rates.
		if (a.CategoryID != nil) != (b.CategoryID != nil) {
			return a.CategoryID != nil
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if !t.compound {
		return candidates[:1], nil
	}

	// Compound mode: the winner plus every remaining rate explicitly
	// flagged as stacking. Non-stacking rates are replaced, not summed.
	resolved := []domain.TaxRate{candidates[0]}
	for _, rate := range candidates[1:] {
		if rate.Stacks && rate.ID != candidates[0].ID {
			resolved = append(resolved, rate)
		}
	}
	return resolved, nil
}
