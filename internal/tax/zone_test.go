package tax

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skatt/internal/domain"
)

// fakeZoneStore serves zones from memory.
type fakeZoneStore struct {
	zones []domain.TaxZone
	err   error
}

func (s *fakeZoneStore) ZonesByCountry(ctx context.Context, countryCode string) ([]domain.TaxZone, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.TaxZone
	for _, z := range s.zones {
		if z.CountryCode == countryCode {
			out = append(out, z)
		}
	}
	return out, nil
}

func (s *fakeZoneStore) ZoneByCode(ctx context.Context, code string) (*domain.TaxZone, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, z := range s.zones {
		if z.Code == code {
			zone := z
			return &zone, nil
		}
	}
	return nil, domain.Errorf(domain.ENOTFOUND, "test.zone_by_code", "Tax zone %q not found", code)
}

func zone(code, country, region, postal string, active bool, createdAt time.Time) domain.TaxZone {
	zt := domain.ZoneTypeCountry
	if postal != "" {
		zt = domain.ZoneTypePostal
	} else if region != "" {
		zt = domain.ZoneTypeState
	}
	return domain.TaxZone{
		ID:            uuid.New(),
		Name:          code,
		Code:          code,
		CountryCode:   country,
		RegionCode:    region,
		PostalPattern: postal,
		ZoneType:      zt,
		Active:        active,
		CreatedAt:     createdAt,
	}
}

func TestResolveZoneSpecificity(t *testing.T) {
	now := time.Now()
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("de", "DE", "", "", true, now),
		zone("de-by", "DE", "BY", "", true, now),
		zone("de-by-munich", "DE", "BY", "^80\\d{3}$", true, now),
	}}
	registry := NewRegistry(store, nil)

	tests := []struct {
		name string
		addr domain.TaxAddress
		want string
	}{
		{
			name: "country only",
			addr: domain.TaxAddress{CountryCode: "DE", RegionCode: "HE", PostalCode: "60311"},
			want: "de",
		},
		{
			name: "region beats country",
			addr: domain.TaxAddress{CountryCode: "DE", RegionCode: "BY", PostalCode: "90402"},
			want: "de-by",
		},
		{
			name: "postal beats region",
			addr: domain.TaxAddress{CountryCode: "DE", RegionCode: "BY", PostalCode: "80331"},
			want: "de-by-munich",
		},
		{
			name: "lowercase country normalized",
			addr: domain.TaxAddress{CountryCode: "de"},
			want: "de",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.ResolveZone(context.Background(), tt.addr)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestResolveZoneNoMatch(t *testing.T) {
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("de", "DE", "", "", true, time.Now()),
	}}
	registry := NewRegistry(store, nil)

	got, err := registry.ResolveZone(context.Background(), domain.TaxAddress{CountryCode: "FR"})
	require.NoError(t, err)
	assert.Nil(t, got, "unconfigured jurisdiction resolves to no zone, not an error")
}

func TestResolveZoneMissingCountry(t *testing.T) {
	registry := NewRegistry(&fakeZoneStore{}, nil)

	_, err := registry.ResolveZone(context.Background(), domain.TaxAddress{PostalCode: "80331"})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestResolveZoneSkipsInactive(t *testing.T) {
	now := time.Now()
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("de", "DE", "", "", true, now),
		zone("de-by", "DE", "BY", "", false, now),
	}}
	registry := NewRegistry(store, nil)

	got, err := registry.ResolveZone(context.Background(), domain.TaxAddress{CountryCode: "DE", RegionCode: "BY"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "de", got.Code, "inactive more-specific zone must not win")
}

func TestResolveZoneTieBreaksOnNewest(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("de-old", "DE", "", "", true, older),
		zone("de-new", "DE", "", "", true, newer),
	}}
	registry := NewRegistry(store, nil)

	got, err := registry.ResolveZone(context.Background(), domain.TaxAddress{CountryCode: "DE"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "de-new", got.Code)
}

func TestResolveZoneMalformedPatternIsNonMatch(t *testing.T) {
	now := time.Now()
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("de", "DE", "", "", true, now),
		zone("de-bad", "DE", "", "[invalid", true, now),
	}}
	registry := NewRegistry(store, nil)

	got, err := registry.ResolveZone(context.Background(), domain.TaxAddress{CountryCode: "DE", PostalCode: "80331"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "de", got.Code)
}

func TestResolveZoneByCodeInactive(t *testing.T) {
	store := &fakeZoneStore{zones: []domain.TaxZone{
		zone("retired", "DE", "", "", false, time.Now()),
	}}
	registry := NewRegistry(store, nil)

	got, err := registry.ResolveZoneByCode(context.Background(), "retired")
	require.NoError(t, err)
	assert.Nil(t, got)
}
