package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/tax"
)

// CategoryStore implements tax.CategoryStore using PostgreSQL.
type CategoryStore struct {
	db DB
}

var _ tax.CategoryStore = (*CategoryStore)(nil)

// NewCategoryStore creates a PostgreSQL-backed category store.
func NewCategoryStore(db DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, code, name, is_digital, is_food, is_luxury, is_medical, is_educational`

// CategoryByID returns the category with the given ID.
func (s *CategoryStore) CategoryByID(ctx context.Context, id uuid.UUID) (*domain.TaxCategory, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM tax_categories WHERE id = $1`,
		pgUUID(id),
	)
	cat, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tax.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to load category %s: %w", id, err)
	}
	return cat, nil
}

// CategoryByCode returns the category with the given unique code.
func (s *CategoryStore) CategoryByCode(ctx context.Context, code string) (*domain.TaxCategory, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM tax_categories WHERE code = $1`,
		code,
	)
	cat, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tax.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to load category %q: %w", code, err)
	}
	return cat, nil
}

func scanCategory(row pgx.Row) (*domain.TaxCategory, error) {
	var (
		cat domain.TaxCategory
		id  pgtype.UUID
	)
	err := row.Scan(
		&id, &cat.Code, &cat.Name,
		&cat.IsDigital, &cat.IsFood, &cat.IsLuxury, &cat.IsMedical, &cat.IsEducational,
	)
	if err != nil {
		return nil, err
	}
	cat.ID = uuidFromPg(id)
	return &cat, nil
}
