package oss

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skatt/internal/domain"
)

// fakeTransactionStore serves transactions from memory, filtered the way
// the postgres store filters.
type fakeTransactionStore struct {
	transactions []domain.TaxTransaction
	err          error
}

func (s *fakeTransactionStore) TransactionsForPeriod(ctx context.Context, q Query) ([]domain.TaxTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.TaxTransaction
	for _, tx := range s.transactions {
		if tx.Scheme != q.Scheme {
			continue
		}
		if tx.CalculatedAt.Before(q.From) || !tx.CalculatedAt.Before(q.To) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func txn(country, taxable, tax, rate string, at time.Time) domain.TaxTransaction {
	return domain.TaxTransaction{
		ID:                 uuid.New(),
		OrderID:            uuid.New(),
		DestinationCountry: country,
		Scheme:             domain.OssSchemeUnion,
		Currency:           "EUR",
		TaxableAmount:      decimal.RequireFromString(taxable),
		TaxAmount:          decimal.RequireFromString(tax),
		VatRate:            decimal.RequireFromString(rate),
		CalculatedAt:       at,
	}
}

func TestGenerateAggregatesByCountryAndRate(t *testing.T) {
	at := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeTransactionStore{transactions: []domain.TaxTransaction{
		// France: 5 sales at 20% totalling 1000 taxable / 200 VAT.
		txn("FR", "300.00", "60.00", "0.2", at),
		txn("FR", "250.00", "50.00", "0.2", at.Add(time.Hour)),
		txn("FR", "200.00", "40.00", "0.2", at.Add(2*time.Hour)),
		txn("FR", "150.00", "30.00", "0.2", at.Add(3*time.Hour)),
		txn("FR", "100.00", "20.00", "0.2", at.Add(4*time.Hour)),
		// Italy: 3 sales at 22% totalling 500 taxable / 110 VAT.
		txn("IT", "250.00", "55.00", "0.22", at),
		txn("IT", "150.00", "33.00", "0.22", at.Add(time.Hour)),
		txn("IT", "100.00", "22.00", "0.22", at.Add(2*time.Hour)),
	}}
	g := NewGenerator(GeneratorConfig{Store: store})

	report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.NoError(t, err)

	assert.Equal(t, domain.OssSchemeUnion, report.Scheme)
	assert.Equal(t, "2025-03", report.Period)
	assert.Equal(t, "DE", report.MemberState)

	require.Len(t, report.Countries, 2)
	fr, it := report.Countries[0], report.Countries[1]
	assert.Equal(t, "FR", fr.CountryCode)
	assert.True(t, fr.TaxableAmount.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, fr.VatAmount.Equal(decimal.RequireFromString("200.00")))
	assert.Equal(t, 5, fr.Transactions)
	assert.Equal(t, "IT", it.CountryCode)
	assert.True(t, it.TaxableAmount.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, it.VatAmount.Equal(decimal.RequireFromString("110.00")))
	assert.Equal(t, 3, it.Transactions)

	assert.True(t, report.TotalTaxableAmount.Equal(decimal.RequireFromString("1500.00")))
	assert.True(t, report.TotalVatAmount.Equal(decimal.RequireFromString("310.00")))
	assert.Equal(t, 8, report.TotalTransactions)
}

func TestGenerateSplitsRatesWithinCountry(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeTransactionStore{transactions: []domain.TaxTransaction{
		txn("FR", "100.00", "20.00", "0.2", at),
		txn("FR", "100.00", "5.50", "0.055", at),
	}}
	g := NewGenerator(GeneratorConfig{Store: store})

	report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.NoError(t, err)

	require.Len(t, report.Countries, 2, "one summary per (country, rate) pair")
	assert.True(t, report.Countries[0].VatRate.LessThan(report.Countries[1].VatRate), "sorted by rate within a country")
}

func TestGeneratePeriodBoundaries(t *testing.T) {
	store := &fakeTransactionStore{transactions: []domain.TaxTransaction{
		txn("FR", "100.00", "20.00", "0.2", time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)),
		txn("FR", "100.00", "20.00", "0.2", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		txn("FR", "100.00", "20.00", "0.2", time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC)),
		txn("FR", "100.00", "20.00", "0.2", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
	}}
	g := NewGenerator(GeneratorConfig{Store: store})

	report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalTransactions, "period covers [first of month, first of next month)")
}

func TestGenerateExcludesReverseCharge(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	reverse := txn("FR", "100.00", "0.00", "0.2", at)
	reverse.ReverseCharge = true
	store := &fakeTransactionStore{transactions: []domain.TaxTransaction{
		txn("FR", "100.00", "20.00", "0.2", at),
		reverse,
	}}

	t.Run("excluded by default", func(t *testing.T) {
		g := NewGenerator(GeneratorConfig{Store: store})
		report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
		require.NoError(t, err)
		assert.Equal(t, 1, report.TotalTransactions)
		assert.True(t, report.TotalTaxableAmount.Equal(decimal.RequireFromString("100.00")))
	})

	t.Run("included when configured", func(t *testing.T) {
		g := NewGenerator(GeneratorConfig{Store: store, IncludeReverseCharge: true})
		report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
		require.NoError(t, err)
		assert.Equal(t, 2, report.TotalTransactions)
		assert.True(t, report.TotalTaxableAmount.Equal(decimal.RequireFromString("200.00")))
	})
}

func TestGenerateFiltersNonEUDestinations(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeTransactionStore{transactions: []domain.TaxTransaction{
		txn("FR", "100.00", "20.00", "0.2", at),
		txn("US", "100.00", "0.00", "0", at),
		txn("GB", "100.00", "20.00", "0.2", at),
	}}
	g := NewGenerator(GeneratorConfig{Store: store})

	report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalTransactions)
	require.Len(t, report.Countries, 1)
	assert.Equal(t, "FR", report.Countries[0].CountryCode)
}

func TestGenerateEmptyPeriod(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Store: &fakeTransactionStore{}})

	report, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.NoError(t, err)
	assert.Empty(t, report.Countries)
	assert.Equal(t, 0, report.TotalTransactions)
	assert.True(t, report.TotalTaxableAmount.IsZero())
	assert.True(t, report.TotalVatAmount.IsZero())
}

func TestGenerateValidation(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Store: &fakeTransactionStore{}})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := g.Generate(context.Background(), domain.OssScheme("moss"), "2025-03", "DE")
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("malformed period", func(t *testing.T) {
		_, err := g.Generate(context.Background(), domain.OssSchemeUnion, "March 2025", "DE")
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("non-EU member state", func(t *testing.T) {
		_, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "US")
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestGenerateStoreFailure(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Store: &fakeTransactionStore{err: errors.New("connection refused")}})

	_, err := g.Generate(context.Background(), domain.OssSchemeUnion, "2025-03", "DE")
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
}
