package tax

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
)

// Engine is the rule-based tax calculator: it classifies items, resolves
// the destination zone and applicable rates, applies reverse-charge and
// exemption rules, and aggregates the per-line breakdown.
//
// Calculation is stateless and safe for concurrent use; the only shared
// mutable state in the whole flow is the VAT validation cache behind the
// injected VatValidator.
type Engine struct {
	zones      *Registry
	rates      *Table
	classifier *Classifier
	vat        VatValidator // nil disables VAT validation and reverse charge
	cfg        Config
	metrics    EngineMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// EngineMetrics receives fail-open fallback observations. Satisfied by
// the telemetry package; nil disables observation.
type EngineMetrics interface {
	RateFallback()
}

// Compile-time check that Engine implements Calculator.
var _ Calculator = (*Engine)(nil)

// NewEngine creates the rule-based tax calculation engine.
func NewEngine(zones *Registry, rates *Table, classifier *Classifier, vat VatValidator, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.HomeCountry = strings.ToUpper(cfg.HomeCountry)
	return &Engine{
		zones:      zones,
		rates:      rates,
		classifier: classifier,
		vat:        vat,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the engine's clock. Test hook for validity windows.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithMetrics attaches fallback observation.
func (e *Engine) WithMetrics(m EngineMetrics) *Engine {
	e.metrics = m
	return e
}

// lineFlags carries the cross-cutting decisions applied to every line.
type lineFlags struct {
	customerExempt  bool
	exemptions      []string
	reverseEligible bool
	b2b             bool
}

// CalculateTax implements Calculator.
func (e *Engine) CalculateTax(ctx context.Context, items []domain.TaxableItem, tc Context) (*domain.TaxCalculation, error) {
	currency := strings.ToUpper(strings.TrimSpace(tc.Currency))
	if currency == "" {
		return nil, ErrMissingCurrency
	}
	if strings.TrimSpace(tc.ShippingAddress.CountryCode) == "" {
		return nil, ErrInvalidAddress
	}

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, domain.Errorf(domain.EINVALID, "tax.calculate",
				"Item %s has non-positive quantity %d", item.ID, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, domain.Errorf(domain.EINVALID, "tax.calculate",
				"Item %s has negative unit price", item.ID)
		}
		if item.Currency != "" && !strings.EqualFold(item.Currency, currency) {
			return nil, domain.Errorf(domain.EINVALID, "tax.calculate",
				"Item %s currency %s does not match calculation currency %s", item.ID, item.Currency, currency)
		}
	}

	asOf := tc.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}

	flags, vatValid, err := e.checkReverseCharge(ctx, tc)
	if err != nil {
		return nil, err
	}

	zone, err := e.resolveZone(ctx, tc.ShippingAddress)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		e.logger.Warn("no tax zone configured for destination, falling back to zero tax",
			"country", tc.ShippingAddress.CountryCode,
		)
	}

	calc := &domain.TaxCalculation{
		Currency:    currency,
		ShippingTax: decimal.Zero,
		TotalTax:    decimal.Zero,
		VatIDValid:  vatValid,
	}
	agg := newBreakdownAggregator()

	for _, item := range items {
		line, contribs, err := e.calculateLine(ctx, item, zone, asOf, currency, flags)
		if err != nil {
			return nil, err
		}
		if line.ReverseCharge {
			calc.ReverseChargeApplied = true
		}
		calc.Lines = append(calc.Lines, *line)
		calc.TotalTax = calc.TotalTax.Add(line.TaxAmount)
		agg.add(zone, line.TaxableAmount, contribs)
	}

	if tc.ShippingAmount.IsPositive() {
		shippingTax, shippingRate, reverse, err := e.shippingTax(ctx, tc.ShippingAmount, zone, asOf, currency, flags)
		if err != nil {
			return nil, err
		}
		if reverse {
			calc.ReverseChargeApplied = true
		}
		calc.ShippingTax = shippingTax
		calc.ShippingTaxRate = shippingRate
		calc.TotalTax = calc.TotalTax.Add(shippingTax)
	}

	calc.Breakdown = agg.entries()
	return calc, nil
}

// CalculateShippingTax implements Calculator: shipping-only calculation
// for a B2C destination, used by checkout before the full cart is priced.
func (e *Engine) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, ErrMissingCurrency
	}
	if strings.TrimSpace(addr.CountryCode) == "" {
		return nil, ErrInvalidAddress
	}
	if amount.IsNegative() {
		return nil, domain.Invalid("tax.shipping", "Shipping amount must not be negative")
	}

	zone, err := e.resolveZone(ctx, addr)
	if err != nil {
		return nil, err
	}

	shippingTax, rate, _, err := e.shippingTax(ctx, amount, zone, e.now(), currency, lineFlags{})
	if err != nil {
		return nil, err
	}

	return &domain.ShippingTaxResult{
		ShippingTax:  shippingTax,
		TaxRate:      rate,
		TotalWithTax: amount.Add(shippingTax),
		Currency:     currency,
	}, nil
}

// checkReverseCharge validates the customer's VAT ID once per request and
// decides cross-border B2B reverse-charge eligibility. VIES unavailability
// is fail-safe: the calculation proceeds with standard tax and the result
// carries no validity claim.
func (e *Engine) checkReverseCharge(ctx context.Context, tc Context) (lineFlags, *bool, error) {
	flags := lineFlags{
		customerExempt: tc.Customer.IsTaxExempt,
		exemptions:     tc.Customer.Exemptions,
		b2b:            tc.TransactionType == domain.TransactionB2B,
	}

	if !flags.b2b || tc.Customer.VatID == "" || e.vat == nil {
		return flags, nil, nil
	}

	result, err := e.vat.Validate(ctx, tc.Customer.VatID)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAVAILABLE:
			e.logger.Warn("VAT validation service unavailable, applying standard tax",
				"error", err,
			)
			return flags, nil, nil
		case domain.EINVALID:
			e.logger.Warn("malformed VAT ID submitted, applying standard tax", "error", err)
			invalid := false
			return flags, &invalid, nil
		default:
			return flags, nil, fmt.Errorf("VAT validation failed: %w", err)
		}
	}

	flags.reverseEligible = result.IsValid &&
		result.CountryCode != e.cfg.HomeCountry &&
		e.cfg.HomeCountry != ""
	return flags, &result.IsValid, nil
}

// resolveZone picks the taxation zone: destination-based by default,
// origin-based (seller home jurisdiction) when configured. Falls back to
// the configured default zone when the jurisdiction is not set up.
func (e *Engine) resolveZone(ctx context.Context, dest domain.TaxAddress) (*domain.TaxZone, error) {
	addr := dest
	if e.cfg.OriginBased {
		addr = domain.TaxAddress{CountryCode: e.cfg.HomeCountry}
	}

	zone, err := e.zones.ResolveZone(ctx, addr)
	if err != nil {
		return nil, err
	}
	if zone == nil && e.cfg.DefaultZoneCode != "" {
		zone, err = e.zones.ResolveZoneByCode(ctx, e.cfg.DefaultZoneCode)
		if err != nil {
			return nil, err
		}
	}
	return zone, nil
}

// rateContribution is one rate's share of a line, feeding the breakdown.
type rateContribution struct {
	rate    domain.TaxRate
	amount  decimal.Decimal
	reverse bool
}

// calculateLine computes one item's tax. The returned contributions feed
// the breakdown aggregation and are empty when no rate applied.
func (e *Engine) calculateLine(ctx context.Context, item domain.TaxableItem, zone *domain.TaxZone, asOf time.Time, currency string, flags lineFlags) (*domain.TaxLineResult, []rateContribution, error) {
	taxable := item.TotalPrice()

	line := &domain.TaxLineResult{
		ItemID:        item.ID,
		TaxableAmount: taxable,
		TaxAmount:     decimal.Zero,
		TaxRate:       decimal.Zero,
	}

	if zone == nil {
		return line, nil, nil
	}
	line.TaxZoneID = zone.ID

	category, err := e.classifier.Classify(ctx, item)
	if err != nil {
		return nil, nil, err
	}

	rates, err := e.rates.ResolveRates(ctx, zone, category, asOf)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return e.handleMissingRate(item, zone, line)
		}
		return nil, nil, err
	}

	line.TaxRateID = rates[0].ID

	contribs := make([]rateContribution, 0, len(rates))

	if flags.customerExempt || exemptionApplies(category, flags.exemptions) {
		for _, rate := range rates {
			contribs = append(contribs, rateContribution{rate: rate, amount: decimal.Zero})
		}
		return line, contribs, nil
	}

	for _, rate := range rates {
		amount, applied, reverse := e.applyRate(rate, taxable, item.Quantity, currency, flags)
		line.TaxAmount = line.TaxAmount.Add(amount)
		line.TaxRate = line.TaxRate.Add(applied)
		if reverse {
			line.ReverseCharge = true
		}
		contribs = append(contribs, rateContribution{rate: rate, amount: amount, reverse: reverse})
	}

	return line, contribs, nil
}

// handleMissingRate applies the fail-open/fail-closed policy for taxable
// zones with no configured rate.
func (e *Engine) handleMissingRate(item domain.TaxableItem, zone *domain.TaxZone, line *domain.TaxLineResult) (*domain.TaxLineResult, []rateContribution, error) {
	if e.cfg.FailOpen {
		e.logger.Warn("no tax rate resolved, falling back to zero tax",
			"zone", zone.Code,
			"item_id", item.ID,
		)
		if e.metrics != nil {
			e.metrics.RateFallback()
		}
		return line, nil, nil
	}
	return nil, nil, domain.Errorf(domain.ENOTFOUND, "tax.rates",
		"No tax rate configured for zone %s (item %s)", zone.Code, item.ID)
}

// applyRate computes one rate's contribution to a line. Returns the
// rounded tax amount, the effective rate reported for the line, and
// whether reverse charge was applied.
func (e *Engine) applyRate(rate domain.TaxRate, taxable decimal.Decimal, quantity int32, currency string, flags lineFlags) (decimal.Decimal, decimal.Decimal, bool) {
	// Zero and exempt VAT types never produce tax.
	if rate.VATType == domain.VATTypeZero || rate.VATType == domain.VATTypeExempt {
		return decimal.Zero, decimal.Zero, false
	}

	if flags.b2b && rate.B2BExempt {
		return decimal.Zero, decimal.Zero, false
	}

	// Cross-border B2B with a validated foreign VAT ID zero-rates the
	// line; liability shifts to the buyer.
	if flags.reverseEligible && rate.ReverseCharge {
		return decimal.Zero, decimal.Zero, true
	}

	if rate.RateType == domain.RateTypeFixed {
		amount := roundAmount(rate.Rate.Mul(decimal.NewFromInt32(quantity)), currency)
		return amount, decimal.Zero, false
	}

	var amount decimal.Decimal
	if e.cfg.InclusivePricing {
		// Tax carved out of the gross: gross * r / (1 + r).
		divisor := decimal.NewFromInt(1).Add(rate.Rate)
		amount = roundAmount(taxable.Mul(rate.Rate).Div(divisor), currency)
	} else {
		amount = roundAmount(taxable.Mul(rate.Rate), currency)
	}
	return amount, rate.Rate, false
}

// shippingTax computes tax on the shipping amount using the zone-standard
// (category-agnostic) rate, under the same reverse-charge and exemption
// rules as merchandise lines.
func (e *Engine) shippingTax(ctx context.Context, amount decimal.Decimal, zone *domain.TaxZone, asOf time.Time, currency string, flags lineFlags) (decimal.Decimal, decimal.Decimal, bool, error) {
	if zone == nil {
		return decimal.Zero, decimal.Zero, false, nil
	}
	if flags.customerExempt {
		return decimal.Zero, decimal.Zero, false, nil
	}

	rates, err := e.rates.ResolveRates(ctx, zone, nil, asOf)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			if e.cfg.FailOpen {
				e.logger.Warn("no shipping tax rate resolved, falling back to zero tax", "zone", zone.Code)
				if e.metrics != nil {
					e.metrics.RateFallback()
				}
				return decimal.Zero, decimal.Zero, false, nil
			}
			return decimal.Zero, decimal.Zero, false, domain.Errorf(domain.ENOTFOUND, "tax.rates",
				"No tax rate configured for zone %s (shipping)", zone.Code)
		}
		return decimal.Zero, decimal.Zero, false, err
	}

	total := decimal.Zero
	effective := decimal.Zero
	reverse := false
	for _, rate := range rates {
		// Fixed per-unit rates do not apply to shipping amounts.
		if rate.RateType == domain.RateTypeFixed {
			continue
		}
		taxAmount, applied, r := e.applyRate(rate, amount, 1, currency, flags)
		total = total.Add(taxAmount)
		effective = effective.Add(applied)
		if r {
			reverse = true
		}
	}
	return total, effective, reverse, nil
}

// exemptionApplies reports whether any named customer exemption targets the
// line's category, e.g. "food_exempt_state" exempts the "food" category.
func exemptionApplies(category *domain.TaxCategory, exemptions []string) bool {
	if category == nil || category.Code == "" {
		return false
	}
	code := strings.ToLower(category.Code)
	for _, ex := range exemptions {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == code || strings.HasPrefix(ex, code+"_") {
			return true
		}
	}
	return false
}

// breakdownAggregator groups line results by (zone, rate), preserving
// first-seen order.
type breakdownAggregator struct {
	order []string
	byKey map[string]*domain.TaxBreakdownEntry
}

func newBreakdownAggregator() *breakdownAggregator {
	return &breakdownAggregator{byKey: make(map[string]*domain.TaxBreakdownEntry)}
}

func (a *breakdownAggregator) add(zone *domain.TaxZone, taxable decimal.Decimal, contribs []rateContribution) {
	if zone == nil {
		return
	}
	for _, c := range contribs {
		key := zone.ID.String() + "|" + c.rate.ID.String()
		entry, ok := a.byKey[key]
		if !ok {
			entry = &domain.TaxBreakdownEntry{
				TaxZoneID:     zone.ID,
				TaxRateID:     c.rate.ID,
				ZoneName:      zone.Name,
				RateName:      c.rate.Name,
				Rate:          c.rate.Rate,
				TaxableAmount: decimal.Zero,
				TaxAmount:     decimal.Zero,
			}
			a.byKey[key] = entry
			a.order = append(a.order, key)
		}
		entry.TaxableAmount = entry.TaxableAmount.Add(taxable)
		entry.TaxAmount = entry.TaxAmount.Add(c.amount)
		if c.reverse {
			entry.ReverseCharge = true
		}
	}
}

func (a *breakdownAggregator) entries() []domain.TaxBreakdownEntry {
	out := make([]domain.TaxBreakdownEntry, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.byKey[key])
	}
	return out
}
