package billing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/skatt/internal/domain"
)

func billableItem(price string, qty int32) domain.TaxableItem {
	return domain.TaxableItem{
		ID:        uuid.New(),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func stripeLine(reference string, amount, amountTax int64, pct string) *stripe.TaxCalculationLineItem {
	li := &stripe.TaxCalculationLineItem{
		Reference: reference,
		Amount:    amount,
		AmountTax: amountTax,
	}
	if pct != "" {
		li.TaxBreakdown = []*stripe.TaxCalculationLineItemTaxBreakdown{{
			Amount: amountTax,
			TaxRateDetails: &stripe.TaxCalculationLineItemTaxBreakdownTaxRateDetails{
				PercentageDecimal: pct,
			},
		}}
	}
	return li
}

func TestBuildCalculationResultPerLineTax(t *testing.T) {
	itemA := billableItem("100.00", 1)
	itemB := billableItem("25.00", 2)

	stripeCalc := &stripe.TaxCalculation{
		TaxAmountExclusive: 2945,
		LineItems: &stripe.TaxCalculationLineItemList{
			Data: []*stripe.TaxCalculationLineItem{
				stripeLine(itemA.ID.String(), 10000, 1900, "19.0"),
				stripeLine(itemB.ID.String(), 5000, 950, "19.0"),
				stripeLine(stripeShippingReference, 500, 95, "19.0"),
			},
		},
	}

	result := buildCalculationResult(stripeCalc, []domain.TaxableItem{itemA, itemB}, "eur")

	assert.Equal(t, "EUR", result.Currency)
	require.Len(t, result.Lines, 2)
	assert.True(t, result.Lines[0].TaxAmount.Equal(decimal.RequireFromString("19.00")),
		"got %s", result.Lines[0].TaxAmount)
	assert.True(t, result.Lines[0].TaxRate.Equal(decimal.RequireFromString("0.19")))
	assert.True(t, result.Lines[1].TaxAmount.Equal(decimal.RequireFromString("9.50")))
	assert.True(t, result.ShippingTax.Equal(decimal.RequireFromString("0.95")))

	// TotalTax is the exact sum of line tax plus shipping tax.
	sum := decimal.Zero
	for _, line := range result.Lines {
		sum = sum.Add(line.TaxAmount)
	}
	assert.True(t, result.TotalTax.Equal(sum.Add(result.ShippingTax)),
		"total %s != line sum %s + shipping %s", result.TotalTax, sum, result.ShippingTax)
	assert.True(t, result.TotalTax.Equal(decimal.RequireFromString("29.45")))
}

func TestBuildCalculationResultReverseCharge(t *testing.T) {
	item := billableItem("100.00", 1)

	line := stripeLine(item.ID.String(), 10000, 0, "")
	line.TaxBreakdown = []*stripe.TaxCalculationLineItemTaxBreakdown{{
		TaxabilityReason: stripe.TaxCalculationLineItemTaxBreakdownTaxabilityReason(stripeReverseChargeReason),
	}}
	stripeCalc := &stripe.TaxCalculation{
		LineItems: &stripe.TaxCalculationLineItemList{
			Data: []*stripe.TaxCalculationLineItem{line},
		},
	}

	result := buildCalculationResult(stripeCalc, []domain.TaxableItem{item}, "eur")

	assert.True(t, result.ReverseChargeApplied)
	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].ReverseCharge)
	assert.True(t, result.Lines[0].TaxAmount.IsZero())
	assert.True(t, result.TotalTax.IsZero())
}

func TestBuildCalculationResultZeroDecimalCurrency(t *testing.T) {
	item := billableItem("1000", 1)

	stripeCalc := &stripe.TaxCalculation{
		LineItems: &stripe.TaxCalculationLineItemList{
			Data: []*stripe.TaxCalculationLineItem{
				stripeLine(item.ID.String(), 1000, 100, "10.0"),
			},
		},
	}

	result := buildCalculationResult(stripeCalc, []domain.TaxableItem{item}, "jpy")

	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].TaxAmount.Equal(decimal.RequireFromString("100")))
	assert.True(t, result.TotalTax.Equal(decimal.RequireFromString("100")))
}
