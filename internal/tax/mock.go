package tax

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
)

// MockCalculator is a test implementation of Calculator.
type MockCalculator struct {
	CalculateTaxFunc         func(ctx context.Context, items []domain.TaxableItem, tc Context) (*domain.TaxCalculation, error)
	CalculateShippingTaxFunc func(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error)
}

// NewMockCalculator creates a new mock tax calculator for testing.
func NewMockCalculator() *MockCalculator {
	return &MockCalculator{}
}

// CalculateTax delegates to the configured function or returns a zero result.
func (m *MockCalculator) CalculateTax(ctx context.Context, items []domain.TaxableItem, tc Context) (*domain.TaxCalculation, error) {
	if m.CalculateTaxFunc != nil {
		return m.CalculateTaxFunc(ctx, items, tc)
	}
	return NewNoTaxCalculator().CalculateTax(ctx, items, tc)
}

// CalculateShippingTax delegates to the configured function or returns zero.
func (m *MockCalculator) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	if m.CalculateShippingTaxFunc != nil {
		return m.CalculateShippingTaxFunc(ctx, amount, addr, currency)
	}
	return NewNoTaxCalculator().CalculateShippingTax(ctx, amount, addr, currency)
}
