package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/vat"
)

// VatCache implements vat.Cache using PostgreSQL, so validation results
// survive restarts and are shared between instances.
type VatCache struct {
	db DB
}

var _ vat.Cache = (*VatCache)(nil)

// NewVatCache creates a PostgreSQL-backed VAT validation cache.
func NewVatCache(db DB) *VatCache {
	return &VatCache{db: db}
}

// Get returns the cached result for a normalized VAT ID, or nil when the
// ID has never been validated. TTL expiry is the validator's concern.
func (c *VatCache) Get(ctx context.Context, vatID string) (*domain.VatValidationResult, error) {
	var result domain.VatValidationResult
	err := c.db.QueryRow(ctx,
		`SELECT vat_id, country_code, is_valid, business_name, validated_at
		 FROM vat_validations WHERE vat_id = $1`,
		vatID,
	).Scan(&result.VatID, &result.CountryCode, &result.IsValid, &result.BusinessName, &result.ValidatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read VAT cache for %s: %w", vatID, err)
	}
	return &result, nil
}

// Set upserts a validation result, keeping only the latest answer per ID.
func (c *VatCache) Set(ctx context.Context, result domain.VatValidationResult) error {
	_, err := c.db.Exec(ctx,
		`INSERT INTO vat_validations (vat_id, country_code, is_valid, business_name, validated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (vat_id) DO UPDATE SET
			country_code = EXCLUDED.country_code,
			is_valid = EXCLUDED.is_valid,
			business_name = EXCLUDED.business_name,
			validated_at = EXCLUDED.validated_at`,
		result.VatID, result.CountryCode, result.IsValid, result.BusinessName, result.ValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write VAT cache for %s: %w", result.VatID, err)
	}
	return nil
}

// PruneExpired deletes entries validated before the cutoff. Returns the
// number of rows removed.
func (c *VatCache) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := c.db.Exec(ctx,
		`DELETE FROM vat_validations WHERE validated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune VAT cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
