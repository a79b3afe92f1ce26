package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/tax"
)

// ZoneStore implements tax.ZoneStore using PostgreSQL.
type ZoneStore struct {
	db DB
}

var _ tax.ZoneStore = (*ZoneStore)(nil)

// NewZoneStore creates a PostgreSQL-backed zone store.
func NewZoneStore(db DB) *ZoneStore {
	return &ZoneStore{db: db}
}

const zoneColumns = `id, name, code, country_code, region_code, postal_pattern, zone_type, active, created_at`

// ZonesByCountry returns all zones configured for a country, active or not.
func (s *ZoneStore) ZonesByCountry(ctx context.Context, countryCode string) ([]domain.TaxZone, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+zoneColumns+` FROM tax_zones WHERE country_code = $1`,
		countryCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones for %s: %w", countryCode, err)
	}
	defer rows.Close()

	return scanZones(rows)
}

// ZoneByCode returns the zone with the given unique code.
func (s *ZoneStore) ZoneByCode(ctx context.Context, code string) (*domain.TaxZone, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+zoneColumns+` FROM tax_zones WHERE code = $1`,
		code,
	)

	zone, err := scanZone(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Errorf(domain.ENOTFOUND, "postgres.zone_by_code", "Tax zone %q not found", code)
		}
		return nil, fmt.Errorf("failed to load zone %q: %w", code, err)
	}
	return zone, nil
}

// CreateZone inserts a zone. Used by admin tooling and seeds.
func (s *ZoneStore) CreateZone(ctx context.Context, zone domain.TaxZone) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tax_zones (id, name, code, country_code, region_code, postal_pattern, zone_type, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pgUUID(zone.ID), zone.Name, zone.Code, zone.CountryCode,
		pgText(zone.RegionCode), pgText(zone.PostalPattern),
		string(zone.ZoneType), zone.Active, zone.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create zone %q: %w", zone.Code, err)
	}
	return nil
}

func scanZones(rows pgx.Rows) ([]domain.TaxZone, error) {
	var zones []domain.TaxZone
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, *zone)
	}
	return zones, rows.Err()
}

func scanZone(row pgx.Row) (*domain.TaxZone, error) {
	var (
		zone                      domain.TaxZone
		id                        pgtype.UUID
		regionCode, postalPattern pgtype.Text
		zoneType                  string
	)
	err := row.Scan(
		&id, &zone.Name, &zone.Code, &zone.CountryCode,
		&regionCode, &postalPattern, &zoneType, &zone.Active, &zone.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	zone.ID = uuidFromPg(id)
	zone.RegionCode = textFromPg(regionCode)
	zone.PostalPattern = textFromPg(postalPattern)
	zone.ZoneType = domain.ZoneType(zoneType)
	return &zone, nil
}
