package service

import (
	"github.com/dukerupert/skatt/internal/domain"
)

// Validation errors - use domain.EINVALID
var (
	ErrNoItems        = domain.Errorf(domain.EINVALID, "", "At least one item is required")
	ErrMissingAddress = domain.Errorf(domain.EINVALID, "", "Shipping address is required")
	ErrInvalidPeriod  = domain.Errorf(domain.EINVALID, "", "Reporting period must be YYYY-MM")
)

// Recording errors
var (
	ErrRecordingDisabled = domain.Errorf(domain.ENOTIMPL, "", "Transaction recording is not enabled")
)
