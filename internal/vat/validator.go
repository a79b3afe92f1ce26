package vat

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/skatt/internal/domain"
)

// DefaultCacheDays is the default validation cache TTL.
const DefaultCacheDays = 30

// Metrics receives cache and lookup observations. Satisfied by the
// telemetry package; nil disables observation.
type Metrics interface {
	VatCacheHit()
	VatCacheMiss()
	ObserveViesLookup(start time.Time)
}

// Validator normalizes, structurally validates and externally confirms
// VAT IDs. Results are cached by normalized VAT ID with a configurable
// TTL, and concurrent validations of the same ID collapse into a single
// external round trip.
type Validator struct {
	verifier Verifier
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// ValidatorConfig contains configuration for the validator.
type ValidatorConfig struct {
	Verifier  Verifier
	Cache     Cache   // defaults to an in-memory cache
	CacheDays int     // defaults to DefaultCacheDays
	Metrics   Metrics // optional
	Logger    *slog.Logger
}

// NewValidator creates a VAT ID validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	days := cfg.CacheDays
	if days <= 0 {
		days = DefaultCacheDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		verifier: cfg.Verifier,
		cache:    cache,
		ttl:      time.Duration(days) * 24 * time.Hour,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the validator's clock. Test hook for TTL expiry.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Validate checks a VAT ID: normalization and structural check first
// (ErrInvalidFormat without any external call), then cache, then a
// single-flighted external lookup. A canceled caller gets its context
// error back, but the in-flight lookup completes for the benefit of other
// waiters and the cache.
func (v *Validator) Validate(ctx context.Context, vatID string) (*domain.VatValidationResult, error) {
	countryCode, number, err := Parse(vatID)
	if err != nil {
		return nil, err
	}
	normalized := countryCode + number

	if cached, err := v.cached(ctx, normalized); err != nil {
		return nil, err
	} else if cached != nil {
		if v.metrics != nil {
			v.metrics.VatCacheHit()
		}
		return cached, nil
	}
	if v.metrics != nil {
		v.metrics.VatCacheMiss()
	}

	if v.verifier == nil {
		return nil, ErrServiceUnavailable
	}

	// The external call runs detached from this caller's cancellation:
	// other goroutines may have joined the same flight.
	lookupCtx := context.WithoutCancel(ctx)
	ch := v.group.DoChan(normalized, func() (interface{}, error) {
		return v.lookup(lookupCtx, normalized, countryCode, number)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(domain.VatValidationResult)
		return &result, nil
	}
}

// cached returns a live cache entry, or nil when absent or expired.
// Cache read failures degrade to a fresh lookup rather than failing the
// validation.
func (v *Validator) cached(ctx context.Context, normalized string) (*domain.VatValidationResult, error) {
	entry, err := v.cache.Get(ctx, normalized)
	if err != nil {
		v.logger.Warn("VAT cache read failed", "vat_id", normalized, "error", err)
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}
	if v.now().Sub(entry.ValidatedAt) >= v.ttl {
		return nil, nil
	}
	return entry, nil
}

// lookup performs the external check and stores the result. Runs inside
// the single-flight group, at most once per normalized VAT ID at a time.
func (v *Validator) lookup(ctx context.Context, normalized, countryCode, number string) (interface{}, error) {
	// A racing flight may have populated the cache between our miss and
	// the group admitting this call.
	if cached, err := v.cached(ctx, normalized); err == nil && cached != nil {
		return *cached, nil
	}

	start := time.Now()
	check, err := v.verifier.Check(ctx, countryCode, number)
	if v.metrics != nil {
		v.metrics.ObserveViesLookup(start)
	}
	if err != nil {
		return nil, err
	}

	result := domain.VatValidationResult{
		VatID:        normalized,
		CountryCode:  countryCode,
		IsValid:      check.Valid,
		BusinessName: check.Name,
		ValidatedAt:  v.now(),
	}

	if err := v.cache.Set(ctx, result); err != nil {
		// A write failure costs an extra lookup later, not correctness.
		v.logger.Warn("VAT cache write failed", "vat_id", normalized, "error", err)
	}

	return result, nil
}

// CacheTTL returns the configured validation cache window.
func (v *Validator) CacheTTL() time.Duration {
	return v.ttl
}
