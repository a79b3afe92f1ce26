package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ZoneType describes how a tax zone scopes its jurisdiction.
type ZoneType string

const (
	ZoneTypeCountry ZoneType = "country"
	ZoneTypeState   ZoneType = "state"
	ZoneTypePostal  ZoneType = "postal"
	ZoneTypeCustom  ZoneType = "custom"
)

// TaxZone identifies a geographic scope to which tax rates attach.
// Zones form an implicit hierarchy: a postal zone is more specific than a
// state zone, which is more specific than a country zone. Zones are never
// mutated in place once rates reference them; deactivation is a soft delete.
type TaxZone struct {
	ID            uuid.UUID
	Name          string
	Code          string
	CountryCode   string // ISO 3166-1 alpha-2, always uppercase
	RegionCode    string // optional state/region code (e.g. "BY", "CA")
	PostalPattern string // optional regex matched against postal codes
	ZoneType      ZoneType
	Active        bool
	CreatedAt     time.Time
}

// RateType distinguishes percentage rates from flat per-unit amounts.
type RateType string

const (
	RateTypePercentage RateType = "percentage"
	RateTypeFixed      RateType = "fixed"
)

// VATType classifies a VAT rate per EU terminology.
type VATType string

const (
	VATTypeStandard VATType = "standard"
	VATTypeReduced  VATType = "reduced"
	VATTypeZero     VATType = "zero"
	VATTypeExempt   VATType = "exempt"
)

// TaxRate is a rate applicable within a zone, optionally restricted to a
// tax category. Rates are immutable once referenced by a historical
// calculation: administrative changes create a new validity window instead
// of mutating the record, so past periods always recompute identically.
type TaxRate struct {
	ID         uuid.UUID
	ZoneID     uuid.UUID
	CategoryID *uuid.UUID // nil means the rate applies to all categories
	Name       string
	Rate       decimal.Decimal // fraction for percentage rates (0.19), per-unit amount for fixed rates
	RateType   RateType
	IsVAT      bool
	VATType    VATType
	B2BExempt  bool
	// ReverseCharge marks the rate as eligible for cross-border B2B
	// reverse charge when the buyer presents a validated VAT ID.
	ReverseCharge bool
	// Stacks marks the rate as additive with other rates resolved for the
	// same zone and date (compound jurisdictions such as state + local).
	// Non-stacking rates replace lower-priority candidates.
	Stacks     bool
	ValidFrom  time.Time
	ValidUntil *time.Time // nil means open-ended
	Priority   int32      // higher wins on overlap
	CreatedAt  time.Time
}

// InEffect reports whether the rate's validity window covers the given date.
func (r TaxRate) InEffect(asOf time.Time) bool {
	if r.ValidFrom.After(asOf) {
		return false
	}
	if r.ValidUntil != nil && r.ValidUntil.Before(asOf) {
		return false
	}
	return true
}

// TaxCategory classifies goods for rate selection and exemptions.
type TaxCategory struct {
	ID            uuid.UUID
	Code          string // "standard", "food", "digital", "medical", "luxury", "educational"
	Name          string
	IsDigital     bool
	IsFood        bool
	IsLuxury      bool
	IsMedical     bool
	IsEducational bool
}

// Well-known category codes. The classifier falls back to CategoryStandard
// when an item carries no explicit category and no digital flag.
const (
	CategoryStandard    = "standard"
	CategoryFood        = "food"
	CategoryDigital     = "digital"
	CategoryMedical     = "medical"
	CategoryLuxury      = "luxury"
	CategoryEducational = "educational"
)

// TaxableItem is a single cart/order line submitted for tax calculation.
// The engine computes tax against Quantity x UnitPrice; a caller-supplied
// total is display-only and never trusted for tax purposes.
type TaxableItem struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Quantity      int32
	UnitPrice     decimal.Decimal
	TaxCategoryID *uuid.UUID
	IsDigital     bool
	Title         string
	SKU           string
	// Currency is optional; when set it must match the calculation currency.
	Currency string
}

// TotalPrice returns Quantity x UnitPrice, the taxable base for the line.
func (i TaxableItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// TaxAddress carries the fields needed for zone resolution. It is not
// persisted independently.
type TaxAddress struct {
	CountryCode string // required, ISO 3166-1 alpha-2
	RegionCode  string
	PostalCode  string
	City        string
}

// TransactionType distinguishes consumer from business transactions.
type TransactionType string

const (
	TransactionB2C TransactionType = "b2c"
	TransactionB2B TransactionType = "b2b"
)

// CustomerTaxInfo bundles the customer-side inputs to a calculation.
type CustomerTaxInfo struct {
	CustomerID  *uuid.UUID
	IsTaxExempt bool
	VatID       string
	// Exemptions holds named exemptions such as "food_exempt_state".
	// An exemption applies to a line when it names the line's category code.
	Exemptions []string
}

// VatValidationResult is the outcome of a VAT ID validation, cached by the
// validator keyed on the normalized VAT ID.
type VatValidationResult struct {
	VatID        string // normalized form, e.g. "DE811569869"
	CountryCode  string
	IsValid      bool
	BusinessName string
	ValidatedAt  time.Time
}

// TaxLineResult is the per-line portion of a calculation.
type TaxLineResult struct {
	ItemID        uuid.UUID
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
	TaxRate       decimal.Decimal // effective rate applied; zero when reverse-charged or exempt
	TaxRateID     uuid.UUID
	TaxZoneID     uuid.UUID
	ReverseCharge bool
}

// TaxBreakdownEntry aggregates line results by (zone, rate).
type TaxBreakdownEntry struct {
	TaxZoneID     uuid.UUID
	TaxRateID     uuid.UUID
	ZoneName      string
	RateName      string
	Rate          decimal.Decimal
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal

	// ReverseCharge marks entries whose rate was zero-rated under the
	// reverse-charge mechanism. Entries of the same calculation can
	// differ: only lines whose rate carries the reverse-charge flag
	// shift liability to the buyer.
	ReverseCharge bool
}

// TaxCalculation is the single calculation contract consumed by cart,
// checkout and order flows. TotalTax always equals the sum of line tax
// amounts plus ShippingTax exactly: each line is rounded to the currency's
// minor unit independently and the aggregate is never re-rounded.
type TaxCalculation struct {
	Lines                []TaxLineResult
	ShippingTax          decimal.Decimal
	ShippingTaxRate      decimal.Decimal
	TotalTax             decimal.Decimal
	Breakdown            []TaxBreakdownEntry
	Currency             string
	ReverseChargeApplied bool
	// VatIDValid is nil when no VAT ID was submitted or the validation
	// service could not be reached (never coerced to false in that case).
	VatIDValid *bool
}

// ShippingTaxResult is the thin shipping-only calculation consumed by checkout.
type ShippingTaxResult struct {
	ShippingTax  decimal.Decimal
	TaxRate      decimal.Decimal
	TotalWithTax decimal.Decimal
	Currency     string
}

// OssScheme selects the One-Stop-Shop reporting scheme.
type OssScheme string

const (
	OssSchemeUnion    OssScheme = "union"
	OssSchemeNonUnion OssScheme = "non_union"
	OssSchemeImport   OssScheme = "import"
)

// TaxTransaction is a persisted record of a completed calculation, queried
// by the OSS report generator. Amounts are stored as charged at calculation
// time; reports never recompute tax.
type TaxTransaction struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	DestinationCountry string
	Scheme             OssScheme
	Currency           string
	TaxableAmount      decimal.Decimal
	TaxAmount          decimal.Decimal
	VatRate            decimal.Decimal
	ReverseCharge      bool
	CalculatedAt       time.Time
}

// OssCountrySummary is the per-destination-country aggregate of an OSS report.
type OssCountrySummary struct {
	CountryCode   string
	VatRate       decimal.Decimal
	TaxableAmount decimal.Decimal
	VatAmount     decimal.Decimal
	Transactions  int
}

// OssReport is the aggregate declaration for a reporting period.
type OssReport struct {
	Scheme             OssScheme
	Period             string // "YYYY-MM"
	MemberState        string
	Countries          []OssCountrySummary
	TotalTaxableAmount decimal.Decimal
	TotalVatAmount     decimal.Decimal
	TotalTransactions  int
	GeneratedAt        time.Time
}
