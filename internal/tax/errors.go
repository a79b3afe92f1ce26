package tax

import (
	"github.com/dukerupert/skatt/internal/domain"
)

// Calculation errors. RateNotFound is recovered via the fail-open policy;
// the others are always surfaced to the caller.
var (
	ErrRateNotFound    = domain.Errorf(domain.ENOTFOUND, "tax.rates", "No tax rate configured for zone")
	ErrInvalidAddress  = domain.Errorf(domain.EINVALID, "tax.calculate", "Shipping address country is required")
	ErrMissingCurrency = domain.Errorf(domain.EINVALID, "tax.calculate", "Calculation currency is required")
)
