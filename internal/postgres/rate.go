package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/tax"
)

// RateStore implements tax.RateStore using PostgreSQL.
type RateStore struct {
	db DB
}

var _ tax.RateStore = (*RateStore)(nil)

// NewRateStore creates a PostgreSQL-backed rate store.
func NewRateStore(db DB) *RateStore {
	return &RateStore{db: db}
}

const rateColumns = `id, zone_id, category_id, name, rate, rate_type, is_vat, vat_type,
	b2b_exempt, reverse_charge, stacks, valid_from, valid_until, priority, created_at`

// RatesByZone returns every rate configured for a zone. Validity-window
// and category filtering happen in the rate table, not here.
func (s *RateStore) RatesByZone(ctx context.Context, zoneID uuid.UUID) ([]domain.TaxRate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+rateColumns+` FROM tax_rates WHERE zone_id = $1`,
		pgUUID(zoneID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates for zone %s: %w", zoneID, err)
	}
	defer rows.Close()

	var rates []domain.TaxRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate for zone %s: %w", zoneID, err)
		}
		rates = append(rates, *rate)
	}
	return rates, rows.Err()
}

// CreateRate inserts a rate. Rates are append-only: corrections close the
// old row's validity window and insert a replacement.
func (s *RateStore) CreateRate(ctx context.Context, rate domain.TaxRate) error {
	rateNum, err := pgNumeric(rate.Rate)
	if err != nil {
		return fmt.Errorf("invalid rate value %s: %w", rate.Rate, err)
	}

	var validUntil pgtype.Timestamptz
	if rate.ValidUntil != nil {
		validUntil = pgtype.Timestamptz{Time: *rate.ValidUntil, Valid: true}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO tax_rates (id, zone_id, category_id, name, rate, rate_type, is_vat, vat_type,
			b2b_exempt, reverse_charge, stacks, valid_from, valid_until, priority, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		pgUUID(rate.ID), pgUUID(rate.ZoneID), pgUUIDFromPtr(rate.CategoryID),
		rate.Name, rateNum, string(rate.RateType), rate.IsVAT, string(rate.VATType),
		rate.B2BExempt, rate.ReverseCharge, rate.Stacks,
		rate.ValidFrom, validUntil, rate.Priority, rate.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rate %q: %w", rate.Name, err)
	}
	return nil
}

func scanRate(row pgx.Row) (*domain.TaxRate, error) {
	var (
		rate               domain.TaxRate
		id, zoneID         pgtype.UUID
		categoryID         pgtype.UUID
		rateNum            pgtype.Numeric
		rateType, vatType  string
		validUntil         pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &zoneID, &categoryID, &rate.Name, &rateNum, &rateType, &rate.IsVAT, &vatType,
		&rate.B2BExempt, &rate.ReverseCharge, &rate.Stacks,
		&rate.ValidFrom, &validUntil, &rate.Priority, &rate.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rate.ID = uuidFromPg(id)
	rate.ZoneID = uuidFromPg(zoneID)
	rate.CategoryID = uuidPtrFromPg(categoryID)
	rate.RateType = domain.RateType(rateType)
	rate.VATType = domain.VATType(vatType)
	if validUntil.Valid {
		t := validUntil.Time
		rate.ValidUntil = &t
	}

	rate.Rate, err = decimalFromPg(rateNum)
	if err != nil {
		return nil, fmt.Errorf("invalid stored rate: %w", err)
	}
	return &rate, nil
}
