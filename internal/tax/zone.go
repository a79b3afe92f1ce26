package tax

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/dukerupert/skatt/internal/domain"
)

// Registry resolves the most specific tax zone for an address.
//
// Specificity ranking: postal > region > country. A zone that specifies a
// region or postal pattern only matches when the address satisfies it; ties
// at the same specificity are an administrative misconfiguration and are
// resolved deterministically by most recent creation, with a warning.
type Registry struct {
	store  ZoneStore
	logger *slog.Logger

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp // compiled postal patterns, keyed by pattern source
}

// NewRegistry creates a zone registry backed by the given store.
func NewRegistry(store ZoneStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:    store,
		logger:   logger,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Zone specificity scores. Country-only matches rank lowest.
const (
	matchCountry = 1
	matchRegion  = 2
	matchPostal  = 3
)

// ResolveZone returns the single most specific active zone matching the
// address, or nil when no zone configures that jurisdiction. Resolution is
// a pure read; it never fails on malformed postal codes or patterns, which
// are treated as non-matches.
func (r *Registry) ResolveZone(ctx context.Context, addr domain.TaxAddress) (*domain.TaxZone, error) {
	country := strings.ToUpper(strings.TrimSpace(addr.CountryCode))
	if country == "" {
		return nil, ErrInvalidAddress
	}

	zones, err := r.store.ZonesByCountry(ctx, country)
	if err != nil {
		return nil, fmt.Errorf("failed to load zones for %s: %w", country, err)
	}

	var (
		best      *domain.TaxZone
		bestScore int
		tied      bool
	)

	for i := range zones {
		zone := &zones[i]
		if !zone.Active {
			continue
		}

		score, ok := r.match(zone, addr)
		if !ok {
			continue
		}

		switch {
		case score > bestScore:
			best, bestScore, tied = zone, score, false
		case score == bestScore && best != nil:
			// Deterministic tie-break: most recently created zone wins.
			tied = true
			if zone.CreatedAt.After(best.CreatedAt) {
				best = zone
			}
		}
	}

	if best == nil {
		return nil, nil
	}

	if tied {
		r.logger.Warn("overlapping tax zones at same specificity",
			"country", country,
			"region", addr.RegionCode,
			"selected_zone", best.Code,
		)
	}

	return best, nil
}

// ResolveZoneByCode returns a zone by its unique code, used for the
// configured default-zone fallback.
func (r *Registry) ResolveZoneByCode(ctx context.Context, code string) (*domain.TaxZone, error) {
	zone, err := r.store.ZoneByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone %s: %w", code, err)
	}
	if zone != nil && !zone.Active {
		return nil, nil
	}
	return zone, nil
}

// match reports whether the zone matches the address and at what
// specificity. A zone that declares a criterion the address fails is a
// non-match, never a downgraded match.
func (r *Registry) match(zone *domain.TaxZone, addr domain.TaxAddress) (int, bool) {
	score := matchCountry

	if zone.RegionCode != "" {
		if !strings.EqualFold(zone.RegionCode, strings.TrimSpace(addr.RegionCode)) {
			return 0, false
		}
		score = matchRegion
	}

	if zone.PostalPattern != "" {
		re := r.compiled(zone.PostalPattern)
		if re == nil || !re.MatchString(strings.TrimSpace(addr.PostalCode)) {
			return 0, false
		}
		score = matchPostal
	}

	return score, true
}

// compiled returns the cached compiled postal pattern, or nil when the
// pattern does not compile. Broken patterns are logged once and treated as
// non-matches thereafter.
func (r *Registry) compiled(pattern string) *regexp.Regexp {
	r.mu.RLock()
	re, seen := r.patterns[pattern]
	r.mu.RUnlock()
	if seen {
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		r.logger.Warn("invalid postal pattern on tax zone", "pattern", pattern, "error", err)
		re = nil
	}

	r.mu.Lock()
	r.patterns[pattern] = re
	r.mu.Unlock()
	return re
}
