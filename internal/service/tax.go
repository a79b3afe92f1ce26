package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/oss"
	"github.com/dukerupert/skatt/internal/tax"
	"github.com/dukerupert/skatt/internal/telemetry"
	"github.com/dukerupert/skatt/internal/vat"
)

// TaxService provides the tax operations consumed by checkout, admin and
// the JSON API.
type TaxService interface {
	CalculateTax(ctx context.Context, items []domain.TaxableItem, taxCtx tax.Context) (*domain.TaxCalculation, error)
	CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error)
	ValidateVatID(ctx context.Context, vatID string) (*domain.VatValidationResult, error)
	RecordTransaction(ctx context.Context, orderID uuid.UUID, calc *domain.TaxCalculation, destination domain.TaxAddress) error
	GenerateOssReport(ctx context.Context, scheme domain.OssScheme, period, memberState string) (*domain.OssReport, error)
}

// TransactionRecorder persists completed calculations for later OSS
// aggregation. Implemented by the postgres transaction store.
type TransactionRecorder interface {
	RecordTransactions(ctx context.Context, txns []domain.TaxTransaction) error
}

// VatValidator is the validation dependency of the service layer.
type VatValidator interface {
	Validate(ctx context.Context, vatID string) (*domain.VatValidationResult, error)
}

// OssGenerator produces OSS reports over the historical transaction store.
type OssGenerator interface {
	Generate(ctx context.Context, scheme domain.OssScheme, period, memberState string) (*domain.OssReport, error)
}

type taxService struct {
	calculator tax.Calculator
	validator  VatValidator
	generator  OssGenerator
	recorder   TransactionRecorder
	metrics    *telemetry.Metrics
	logger     *slog.Logger

	ossEnabled bool
	scheme     domain.OssScheme
	now        func() time.Time
}

// TaxServiceConfig contains the dependencies of the tax service.
// Validator, Generator, Recorder and Metrics are optional; the
// corresponding operations return ENOTIMPL or skip work when absent.
type TaxServiceConfig struct {
	Calculator tax.Calculator
	Validator  VatValidator
	Generator  OssGenerator
	Recorder   TransactionRecorder
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
	OssEnabled bool
}

// NewTaxService creates the orchestration service.
func NewTaxService(cfg TaxServiceConfig) TaxService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &taxService{
		calculator: cfg.Calculator,
		validator:  cfg.Validator,
		generator:  cfg.Generator,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		logger:     logger,
		ossEnabled: cfg.OssEnabled,
		scheme:     domain.OssSchemeUnion,
		now:        time.Now,
	}
}

// CalculateTax runs a full calculation for a set of items.
func (s *taxService) CalculateTax(ctx context.Context, items []domain.TaxableItem, taxCtx tax.Context) (*domain.TaxCalculation, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	start := s.now()
	calc, err := s.calculator.CalculateTax(ctx, items, taxCtx)
	if err != nil {
		s.metrics.ObserveCalculation("error", start)
		return nil, err
	}

	s.metrics.ObserveCalculation("ok", start)
	if calc.ReverseChargeApplied && s.metrics != nil {
		s.metrics.ReverseChargeApplied.Inc()
	}

	s.logger.Debug("tax calculated",
		"lines", len(calc.Lines),
		"total_tax", calc.TotalTax.String(),
		"currency", calc.Currency,
		"reverse_charge", calc.ReverseChargeApplied,
	)
	return calc, nil
}

// CalculateShippingTax taxes a shipping amount on its own.
func (s *taxService) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	return s.calculator.CalculateShippingTax(ctx, amount, addr, currency)
}

// ValidateVatID validates a customer VAT ID, reporting format errors and
// registry unavailability as distinct outcomes.
func (s *taxService) ValidateVatID(ctx context.Context, vatID string) (*domain.VatValidationResult, error) {
	if s.validator == nil {
		return nil, domain.Errorf(domain.ENOTIMPL, "service.validate_vat", "VAT validation is not configured")
	}

	result, err := s.validator.Validate(ctx, vatID)
	if err != nil {
		switch {
		case errors.Is(err, vat.ErrInvalidFormat):
			s.metrics.ObserveVatValidation("invalid_format")
		case errors.Is(err, vat.ErrServiceUnavailable):
			s.metrics.ObserveVatValidation("unavailable")
		}
		return nil, err
	}

	if result.IsValid {
		s.metrics.ObserveVatValidation("valid")
	} else {
		s.metrics.ObserveVatValidation("invalid")
	}
	return result, nil
}

// RecordTransaction persists one transaction per breakdown rate of a
// completed calculation, keyed to the order. Called at order placement,
// not at cart preview, so repeated previews never inflate OSS totals.
func (s *taxService) RecordTransaction(ctx context.Context, orderID uuid.UUID, calc *domain.TaxCalculation, destination domain.TaxAddress) error {
	if !s.ossEnabled || s.recorder == nil {
		return ErrRecordingDisabled
	}
	if calc == nil {
		return domain.Errorf(domain.EINVALID, "service.record_transaction", "Calculation is required")
	}

	calculatedAt := s.now()
	txns := make([]domain.TaxTransaction, 0, len(calc.Breakdown))
	for _, entry := range calc.Breakdown {
		txns = append(txns, domain.TaxTransaction{
			ID:                 uuid.New(),
			OrderID:            orderID,
			DestinationCountry: destination.CountryCode,
			Scheme:             s.scheme,
			Currency:           calc.Currency,
			TaxableAmount:      entry.TaxableAmount,
			TaxAmount:          entry.TaxAmount,
			VatRate:            entry.Rate,
			ReverseCharge:      entry.ReverseCharge,
			CalculatedAt:       calculatedAt,
		})
	}
	if len(txns) == 0 {
		return nil
	}

	if err := s.recorder.RecordTransactions(ctx, txns); err != nil {
		return fmt.Errorf("failed to record tax transactions for order %s: %w", orderID, err)
	}

	s.logger.Info("tax transactions recorded",
		"order_id", orderID,
		"count", len(txns),
		"country", destination.CountryCode,
	)
	return nil
}

// GenerateOssReport aggregates recorded transactions for a period.
func (s *taxService) GenerateOssReport(ctx context.Context, scheme domain.OssScheme, period, memberState string) (*domain.OssReport, error) {
	if s.generator == nil {
		return nil, domain.Errorf(domain.ENOTIMPL, "service.oss_report", "OSS reporting is not configured")
	}

	start := s.now()
	report, err := s.generator.Generate(ctx, scheme, period, memberState)
	if err != nil {
		s.metrics.ObserveOssReport("error", start)
		return nil, err
	}
	s.metrics.ObserveOssReport("ok", start)
	return report, nil
}

var _ OssGenerator = (*oss.Generator)(nil)
var _ VatValidator = (*vat.Validator)(nil)
