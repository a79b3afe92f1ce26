package tax

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/skatt/internal/domain"
)

// Classifier maps a taxable item to its tax category.
type Classifier struct {
	store  CategoryStore
	logger *slog.Logger
}

// NewClassifier creates a classifier backed by the given category store.
func NewClassifier(store CategoryStore, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{store: store, logger: logger}
}

// Classify returns the category for an item. An explicit category ID is
// looked up directly and an unknown ID is an input error; otherwise the
// digital flag selects the digital category, falling back to standard.
func (c *Classifier) Classify(ctx context.Context, item domain.TaxableItem) (*domain.TaxCategory, error) {
	if item.TaxCategoryID != nil {
		cat, err := c.store.CategoryByID(ctx, *item.TaxCategoryID)
		if err != nil {
			if domain.IsCode(err, domain.ENOTFOUND) {
				return nil, domain.Errorf(domain.EINVALID, "tax.classify",
					"Unknown tax category %s on item %s", *item.TaxCategoryID, item.ID)
			}
			return nil, fmt.Errorf("failed to look up category %s: %w", *item.TaxCategoryID, err)
		}
		return cat, nil
	}

	code := domain.CategoryStandard
	if item.IsDigital {
		code = domain.CategoryDigital
	}

	cat, err := c.store.CategoryByCode(ctx, code)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			// Deployments without seeded categories still calculate:
			// synthesize an unpersisted standard category.
			c.logger.Warn("tax category not configured, using synthetic standard", "code", code)
			return &domain.TaxCategory{Code: domain.CategoryStandard, Name: "Standard"}, nil
		}
		return nil, fmt.Errorf("failed to look up category %s: %w", code, err)
	}
	return cat, nil
}

// ErrCategoryNotFound is returned by category stores for unknown categories.
var ErrCategoryNotFound = domain.Errorf(domain.ENOTFOUND, "tax.category", "Tax category not found")
