package billing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/tax/calculation"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/tax"
)

// StripeTaxCalculator delegates tax calculation to Stripe Tax.
//
// This is an alternative to the rule-based engine for deployments that
// prefer a managed tax provider over maintaining their own zone and rate
// tables. It implements the same Calculator contract, so cart, checkout
// and order flows do not care which provider is wired.
//
// Reverse charge, VAT ID handling and OSS persistence remain the
// deployment's responsibility; Stripe Tax only answers "how much tax".
//
// Note: requires Stripe Tax to be enabled in the Stripe dashboard.
type StripeTaxCalculator struct{}

// Compile-time check that StripeTaxCalculator implements tax.Calculator.
var _ tax.Calculator = (*StripeTaxCalculator)(nil)

// NewStripeTaxCalculator creates a tax calculator that delegates to
// Stripe Tax. The Stripe API key is taken from the global stripe client
// configuration set at startup.
func NewStripeTaxCalculator() tax.Calculator {
	return &StripeTaxCalculator{}
}

// stripeTaxCodes maps our category codes to Stripe tax codes.
// See https://stripe.com/docs/tax/tax-categories.
var stripeTaxCodes = map[string]string{
	domain.CategoryStandard: "txcd_99999999", // general merchandise
	domain.CategoryFood:     "txcd_30011000", // food and beverages
	domain.CategoryDigital:  "txcd_10000000", // digital goods
	domain.CategoryMedical:  "txcd_34021000", // medical supplies
}

const stripeShippingTaxCode = "txcd_92010001"

// stripeShippingReference identifies the synthetic shipping line in the
// calculation request and response.
const stripeShippingReference = "shipping"

const stripeReverseChargeReason = "reverse_charge"

// CalculateTax implements tax.Calculator by calling the Stripe Tax
// calculation API.
func (c *StripeTaxCalculator) CalculateTax(ctx context.Context, items []domain.TaxableItem, tc tax.Context) (*domain.TaxCalculation, error) {
	currency := strings.ToLower(tc.Currency)

	calcParams := &stripe.TaxCalculationParams{
		Currency: stripe.String(currency),
		CustomerDetails: &stripe.TaxCalculationCustomerDetailsParams{
			Address: &stripe.AddressParams{
				City:       stripe.String(tc.ShippingAddress.City),
				State:      stripe.String(tc.ShippingAddress.RegionCode),
				PostalCode: stripe.String(tc.ShippingAddress.PostalCode),
				Country:    stripe.String(tc.ShippingAddress.CountryCode),
			},
			AddressSource: stripe.String("shipping"),
		},
		LineItems: buildStripeTaxLineItems(items, tc),
	}
	calcParams.Context = ctx
	// Per-line tax amounts only come back when line items are expanded.
	calcParams.AddExpand("line_items")
	calcParams.AddExpand("line_items.data.tax_breakdown")

	if vatID := tc.Customer.VatID; vatID != "" {
		calcParams.CustomerDetails.TaxIDs = []*stripe.TaxCalculationCustomerDetailsTaxIDParams{
			{
				Type:  stripe.String("eu_vat"),
				Value: stripe.String(vatID),
			},
		}
	}

	stripeCalc, err := calculation.New(calcParams)
	if err != nil {
		return nil, domain.Unavailable(err, "billing.stripe_tax", "Stripe Tax calculation failed")
	}

	return buildCalculationResult(stripeCalc, items, tc.Currency), nil
}

// stripeLineTax is the per-line tax extracted from an expanded response.
type stripeLineTax struct {
	amount  decimal.Decimal
	rate    decimal.Decimal
	reverse bool
}

// lineTaxByReference indexes the expanded line items by the reference we
// set on the request (the item ID, or the shipping marker).
func lineTaxByReference(calc *stripe.TaxCalculation, currency string) map[string]stripeLineTax {
	out := make(map[string]stripeLineTax)
	if calc.LineItems == nil {
		return out
	}
	for _, li := range calc.LineItems.Data {
		lt := stripeLineTax{
			amount: fromMinorUnits(li.AmountTax, currency),
			rate:   decimal.Zero,
		}
		for _, b := range li.TaxBreakdown {
			if b.TaxabilityReason == stripeReverseChargeReason {
				lt.reverse = true
			}
			if b.TaxRateDetails == nil {
				continue
			}
			if pct, err := decimal.NewFromString(b.TaxRateDetails.PercentageDecimal); err == nil {
				lt.rate = lt.rate.Add(pct.Div(decimal.NewFromInt(100)))
			}
		}
		out[li.Reference] = lt
	}
	return out
}

// buildCalculationResult maps a Stripe calculation onto the Calculator
// contract. Lines carry their own tax amounts and TotalTax is the exact
// sum of line tax plus shipping tax.
func buildCalculationResult(stripeCalc *stripe.TaxCalculation, items []domain.TaxableItem, currency string) *domain.TaxCalculation {
	result := &domain.TaxCalculation{
		Currency:    strings.ToUpper(currency),
		ShippingTax: decimal.Zero,
		Breakdown:   buildBreakdown(stripeCalc, currency),
	}

	lineTaxes := lineTaxByReference(stripeCalc, currency)

	if shipping, ok := lineTaxes[stripeShippingReference]; ok {
		result.ShippingTax = shipping.amount
		result.ShippingTaxRate = shipping.rate
		if shipping.reverse {
			result.ReverseChargeApplied = true
		}
	}
	if stripeCalc.ShippingCost != nil {
		result.ShippingTax = fromMinorUnits(stripeCalc.ShippingCost.AmountTax, currency)
	}

	total := decimal.Zero
	for _, item := range items {
		lt := lineTaxes[item.ID.String()]
		total = total.Add(lt.amount)
		if lt.reverse {
			result.ReverseChargeApplied = true
		}
		result.Lines = append(result.Lines, domain.TaxLineResult{
			ItemID:        item.ID,
			TaxableAmount: item.TotalPrice(),
			TaxAmount:     lt.amount,
			TaxRate:       lt.rate,
			ReverseCharge: lt.reverse,
		})
	}
	result.TotalTax = total.Add(result.ShippingTax)

	for _, item := range stripeCalc.TaxBreakdown {
		if item.TaxabilityReason == stripeReverseChargeReason {
			result.ReverseChargeApplied = true
		}
	}

	return result
}

// CalculateShippingTax implements tax.Calculator for shipping-only
// amounts, modeled as a single shipping line.
func (c *StripeTaxCalculator) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	calc, err := c.CalculateTax(ctx, nil, tax.Context{
		ShippingAddress: addr,
		Currency:        currency,
		ShippingAmount:  amount,
	})
	if err != nil {
		return nil, err
	}

	return &domain.ShippingTaxResult{
		ShippingTax:  calc.ShippingTax,
		TaxRate:      calc.ShippingTaxRate,
		TotalWithTax: amount.Add(calc.ShippingTax),
		Currency:     currency,
	}, nil
}

// buildStripeTaxLineItems converts taxable items to Stripe's format,
// appending shipping as its own line when present.
func buildStripeTaxLineItems(items []domain.TaxableItem, tc tax.Context) []*stripe.TaxCalculationLineItemParams {
	lineItems := make([]*stripe.TaxCalculationLineItemParams, 0, len(items)+1)

	for _, item := range items {
		taxCode := stripeTaxCodes[domain.CategoryStandard]
		if item.IsDigital {
			taxCode = stripeTaxCodes[domain.CategoryDigital]
		}

		lineItems = append(lineItems, &stripe.TaxCalculationLineItemParams{
			Amount:    stripe.Int64(toMinorUnits(item.TotalPrice(), tc.Currency)),
			Quantity:  stripe.Int64(int64(item.Quantity)),
			Reference: stripe.String(item.ID.String()),
			TaxCode:   stripe.String(taxCode),
		})
	}

	if tc.ShippingAmount.IsPositive() {
		lineItems = append(lineItems, &stripe.TaxCalculationLineItemParams{
			Amount:    stripe.Int64(toMinorUnits(tc.ShippingAmount, tc.Currency)),
			Reference: stripe.String(stripeShippingReference),
			TaxCode:   stripe.String(stripeShippingTaxCode),
		})
	}

	return lineItems
}

// buildBreakdown extracts the per-rate breakdown from a Stripe response.
func buildBreakdown(calc *stripe.TaxCalculation, currency string) []domain.TaxBreakdownEntry {
	entries := make([]domain.TaxBreakdownEntry, 0, len(calc.TaxBreakdown))

	for _, item := range calc.TaxBreakdown {
		if item.TaxRateDetails == nil {
			continue
		}

		name := item.TaxRateDetails.Country
		if item.TaxRateDetails.State != "" {
			name = item.TaxRateDetails.State
		}

		rate, err := decimal.NewFromString(item.TaxRateDetails.PercentageDecimal)
		if err != nil {
			rate = decimal.Zero
		}

		entries = append(entries, domain.TaxBreakdownEntry{
			ZoneName:      name,
			RateName:      string(item.TaxRateDetails.TaxType),
			Rate:          rate.Div(decimal.NewFromInt(100)),
			TaxableAmount: fromMinorUnits(item.TaxableAmount, currency),
			TaxAmount:     fromMinorUnits(item.Amount, currency),
		})
	}

	return entries
}

// zeroDecimalCurrencies mirrors Stripe's zero-decimal currency handling.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "ISK": {}, "JPY": {},
	"KMF": {}, "KRW": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

func minorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

func toMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(minorUnitExponent(currency)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-minorUnitExponent(currency))
}
