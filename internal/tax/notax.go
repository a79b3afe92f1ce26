package tax

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
)

// NoTaxCalculator returns zero tax for all calculations.
// Used for tax-exempt deployments and wholesale-only storefronts.
type NoTaxCalculator struct{}

// NewNoTaxCalculator creates a new no-tax calculator.
func NewNoTaxCalculator() Calculator {
	return &NoTaxCalculator{}
}

// CalculateTax always returns zero tax with an empty breakdown.
func (c *NoTaxCalculator) CalculateTax(ctx context.Context, items []domain.TaxableItem, tc Context) (*domain.TaxCalculation, error) {
	calc := &domain.TaxCalculation{
		Currency:    tc.Currency,
		ShippingTax: decimal.Zero,
		TotalTax:    decimal.Zero,
	}
	for _, item := range items {
		calc.Lines = append(calc.Lines, domain.TaxLineResult{
			ItemID:        item.ID,
			TaxableAmount: item.TotalPrice(),
			TaxAmount:     decimal.Zero,
			TaxRate:       decimal.Zero,
		})
	}
	return calc, nil
}

// CalculateShippingTax always returns zero shipping tax.
func (c *NoTaxCalculator) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	return &domain.ShippingTaxResult{
		ShippingTax:  decimal.Zero,
		TaxRate:      decimal.Zero,
		TotalWithTax: amount,
		Currency:     currency,
	}, nil
}
