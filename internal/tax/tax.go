package tax

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
)

// Calculator defines the interface for tax calculation.
// Implementations: Engine, StripeTaxCalculator (billing package), NoTaxCalculator.
type Calculator interface {
	// CalculateTax computes the full per-line tax breakdown for a set of
	// taxable items plus shipping. The result is the single contract
	// consumed by cart totals, checkout orchestration and order creation.
	CalculateTax(ctx context.Context, items []domain.TaxableItem, tc Context) (*domain.TaxCalculation, error)

	// CalculateShippingTax computes tax on a shipping amount alone, using
	// the zone-standard rate for the destination address.
	CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error)
}

// Context bundles the non-item inputs to a tax calculation.
type Context struct {
	Customer        domain.CustomerTaxInfo
	ShippingAddress domain.TaxAddress
	BillingAddress  *domain.TaxAddress
	Currency        string // ISO 4217, required; all items must match
	TransactionType domain.TransactionType
	ShippingAmount  decimal.Decimal
	// AsOf selects the rate validity date. Zero means "now"; historical
	// recalculation passes the original calculation time.
	AsOf time.Time
}

// ZoneStore is the read side of the zone administrative store.
type ZoneStore interface {
	// ZonesByCountry returns all active zones configured for a country.
	ZonesByCountry(ctx context.Context, countryCode string) ([]domain.TaxZone, error)

	// ZoneByCode returns a zone by its unique code.
	ZoneByCode(ctx context.Context, code string) (*domain.TaxZone, error)
}

// RateStore is the read side of the rate administrative store.
type RateStore interface {
	// RatesByZone returns all rates attached to a zone, any validity window.
	RatesByZone(ctx context.Context, zoneID uuid.UUID) ([]domain.TaxRate, error)
}

// CategoryStore looks up tax categories.
type CategoryStore interface {
	CategoryByID(ctx context.Context, id uuid.UUID) (*domain.TaxCategory, error)
	CategoryByCode(ctx context.Context, code string) (*domain.TaxCategory, error)
}

// VatValidator validates a VAT ID, with caching and single-flight handled
// by the implementation (vat package).
type VatValidator interface {
	Validate(ctx context.Context, vatID string) (*domain.VatValidationResult, error)
}

// Config carries the deployment-level tax settings read at calculation time.
type Config struct {
	// HomeCountry is the seller's home jurisdiction (ISO alpha-2).
	// Cross-border B2B reverse charge applies when a validated VAT ID
	// belongs to a different country.
	HomeCountry string

	// DefaultZoneCode is applied when no zone matches the destination.
	// Empty means unmatched jurisdictions fall back to zero tax.
	DefaultZoneCode string

	// FailOpen controls rate-resolution failures for taxable zones:
	// true falls back to zero tax with a warning, false blocks the
	// calculation. Defaults to fail-closed for safety.
	FailOpen bool

	// OriginBased switches zone resolution from the shipping destination
	// to the seller's home jurisdiction.
	OriginBased bool

	// CompoundStacking enables additive multi-rate jurisdictions
	// (state + local). When false only the single winning rate applies.
	CompoundStacking bool

	// InclusivePricing treats item prices as tax-inclusive: the reported
	// tax is carved out of the gross amount instead of added on top.
	InclusivePricing bool
}
