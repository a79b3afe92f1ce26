package tax

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skatt/internal/domain"
)

// fakeRateStore serves rates from memory.
type fakeRateStore struct {
	rates []domain.TaxRate
	err   error
}

func (s *fakeRateStore) RatesByZone(ctx context.Context, zoneID uuid.UUID) ([]domain.TaxRate, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.TaxRate
	for _, r := range s.rates {
		if r.ZoneID == zoneID {
			out = append(out, r)
		}
	}
	return out, nil
}

type rateOpt func(*domain.TaxRate)

func withCategory(id uuid.UUID) rateOpt {
	return func(r *domain.TaxRate) { r.CategoryID = &id }
}

func withPriority(p int32) rateOpt {
	return func(r *domain.TaxRate) { r.Priority = p }
}

func withWindow(from time.Time, until *time.Time) rateOpt {
	return func(r *domain.TaxRate) { r.ValidFrom = from; r.ValidUntil = until }
}

func withStacks() rateOpt {
	return func(r *domain.TaxRate) { r.Stacks = true }
}

func rate(name string, zoneID uuid.UUID, pct string, opts ...rateOpt) domain.TaxRate {
	r := domain.TaxRate{
		ID:        uuid.New(),
		ZoneID:    zoneID,
		Name:      name,
		Rate:      decimal.RequireFromString(pct),
		RateType:  domain.RateTypePercentage,
		IsVAT:     true,
		VATType:   domain.VATTypeStandard,
		ValidFrom: time.Now().Add(-24 * time.Hour),
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func TestResolveRatesSingleWinner(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "de"}
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("standard", zoneID, "0.19"),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, nil, time.Now())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "standard", rates[0].Name)
}

func TestResolveRatesValidityWindow(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "de"}
	now := time.Now()
	expired := now.Add(-time.Hour)
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("old", zoneID, "0.16", withWindow(now.Add(-48*time.Hour), &expired)),
		rate("current", zoneID, "0.19", withWindow(now.Add(-24*time.Hour), nil)),
		rate("future", zoneID, "0.21", withWindow(now.Add(24*time.Hour), nil)),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, nil, now)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "current", rates[0].Name)
}

func TestResolveRatesHistoricalDate(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "de"}
	now := time.Now()
	cutover := now.Add(-time.Hour)
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("old", zoneID, "0.16", withWindow(now.Add(-48*time.Hour), &cutover)),
		rate("current", zoneID, "0.19", withWindow(cutover, nil)),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, nil, now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "old", rates[0].Name, "historical asOf selects the rate in effect then")
}

func TestResolveRatesCategorySpecificWins(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "de"}
	food := &domain.TaxCategory{ID: uuid.New(), Code: domain.CategoryFood}
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("standard", zoneID, "0.19", withPriority(10)),
		rate("food-reduced", zoneID, "0.07", withCategory(food.ID)),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, food, time.Now())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "food-reduced", rates[0].Name, "category rate beats zone-wide rate regardless of priority")
}

func TestResolveRatesCategoryMismatchFiltered(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "de"}
	food := uuid.New()
	digital := &domain.TaxCategory{ID: uuid.New(), Code: domain.CategoryDigital}
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("standard", zoneID, "0.19"),
		rate("food-reduced", zoneID, "0.07", withCategory(food)),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, digital, time.Now())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "standard", rates[0].Name)
}

func TestResolveRatesPriority(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "us-ca"}
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("county", zoneID, "0.0025", withPriority(5)),
		rate("state", zoneID, "0.0725", withPriority(10)),
	}}
	table := NewTable(store, false)

	rates, err := table.ResolveRates(context.Background(), z, nil, time.Now())
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "state", rates[0].Name)
}

func TestResolveRatesCompoundStacking(t *testing.T) {
	zoneID := uuid.New()
	z := &domain.TaxZone{ID: zoneID, Code: "us-ca"}
	store := &fakeRateStore{rates: []domain.TaxRate{
		rate("state", zoneID, "0.0725", withPriority(10)),
		rate("county", zoneID, "0.0025", withPriority(5), withStacks()),
		rate("city", zoneID, "0.01", withPriority(1)),
	}}
	table := NewTable(store, true)

	rates, err := table.ResolveRates(context.Background(), z, nil, time.Now())
	require.NoError(t, err)
	require.Len(t, rates, 2, "winner plus stacking rates only")
	assert.Equal(t, "state", rates[0].Name)
	assert.Equal(t, "county", rates[1].Name)
}

func TestResolveRatesNotFound(t *testing.T) {
	z := &domain.TaxZone{ID: uuid.New(), Code: "empty"}
	table := NewTable(&fakeRateStore{}, false)

	_, err := table.ResolveRates(context.Background(), z, nil, time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
