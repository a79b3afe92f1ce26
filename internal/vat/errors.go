package vat

import (
	"github.com/dukerupert/skatt/internal/domain"
)

var (
	// ErrInvalidFormat means the VAT ID failed the per-country structural
	// check. Surfaced before any external call is attempted.
	ErrInvalidFormat = domain.Errorf(domain.EINVALID, "vat.validate", "VAT ID format is invalid")

	// ErrServiceUnavailable means VIES could not be reached or refused the
	// lookup. Never conflated with an invalid VAT ID: callers decide
	// whether to proceed without reverse charge or to block.
	ErrServiceUnavailable = domain.Errorf(domain.EUNAVAILABLE, "vat.validate", "VAT validation service is unavailable")
)
