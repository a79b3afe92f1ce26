package vat

import (
	"context"
	"sync"

	"github.com/dukerupert/skatt/internal/domain"
)

// Cache stores validation results keyed by the normalized VAT ID. TTL
// enforcement lives in the Validator so every implementation ages entries
// identically.
type Cache interface {
	// Get returns the cached result for a normalized VAT ID, or nil when
	// absent.
	Get(ctx context.Context, vatID string) (*domain.VatValidationResult, error)

	// Set stores a validation result keyed by its normalized VAT ID.
	Set(ctx context.Context, result domain.VatValidationResult) error
}

// MemoryCache is an in-process Cache. Suitable for single-instance
// deployments and tests; multi-instance deployments use the
// postgres-backed cache so validations are shared.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]domain.VatValidationResult
}

// NewMemoryCache creates an empty in-memory validation cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]domain.VatValidationResult)}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, vatID string) (*domain.VatValidationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.entries[vatID]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, result domain.VatValidationResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[result.VatID] = result
	return nil
}
