package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/tax"
)

// mockTaxService is a scriptable TaxService for handler tests.
type mockTaxService struct {
	calc       *domain.TaxCalculation
	shipping   *domain.ShippingTaxResult
	validation *domain.VatValidationResult
	report     *domain.OssReport
	err        error

	gotItems  []domain.TaxableItem
	gotTaxCtx tax.Context
	gotVatID  string
	gotScheme domain.OssScheme
	gotPeriod string
	gotState  string
}

func (m *mockTaxService) CalculateTax(ctx context.Context, items []domain.TaxableItem, taxCtx tax.Context) (*domain.TaxCalculation, error) {
	m.gotItems = items
	m.gotTaxCtx = taxCtx
	if m.err != nil {
		return nil, m.err
	}
	return m.calc, nil
}

func (m *mockTaxService) CalculateShippingTax(ctx context.Context, amount decimal.Decimal, addr domain.TaxAddress, currency string) (*domain.ShippingTaxResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.shipping, nil
}

func (m *mockTaxService) ValidateVatID(ctx context.Context, vatID string) (*domain.VatValidationResult, error) {
	m.gotVatID = vatID
	if m.err != nil {
		return nil, m.err
	}
	return m.validation, nil
}

func (m *mockTaxService) RecordTransaction(ctx context.Context, orderID uuid.UUID, calc *domain.TaxCalculation, destination domain.TaxAddress) error {
	return m.err
}

func (m *mockTaxService) GenerateOssReport(ctx context.Context, scheme domain.OssScheme, period, memberState string) (*domain.OssReport, error) {
	m.gotScheme = scheme
	m.gotPeriod = period
	m.gotState = memberState
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func TestCalculateHandler(t *testing.T) {
	svc := &mockTaxService{calc: &domain.TaxCalculation{
		Lines: []domain.TaxLineResult{{
			ItemID:        uuid.New(),
			TaxableAmount: decimal.RequireFromString("59.98"),
			TaxAmount:     decimal.RequireFromString("11.40"),
			TaxRate:       decimal.RequireFromString("0.19"),
		}},
		TotalTax: decimal.RequireFromString("11.40"),
		Currency: "EUR",
	}}
	h := NewTaxHandler(svc, nil)

	body := `{
		"currency": "EUR",
		"transaction_type": "b2c",
		"items": [{"quantity": 2, "unit_price": "29.99"}],
		"shipping_address": {"country_code": "DE", "postal_code": "80331"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/tax/calculate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		TotalTax string `json:"total_tax"`
		Currency string `json:"currency"`
		Lines    []struct {
			TaxAmount string `json:"tax_amount"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "11.4", resp.TotalTax)
	assert.Equal(t, "EUR", resp.Currency)
	require.Len(t, resp.Lines, 1)

	// Request decoding passed through to the service.
	require.Len(t, svc.gotItems, 1)
	assert.EqualValues(t, 2, svc.gotItems[0].Quantity)
	assert.Equal(t, "DE", svc.gotTaxCtx.ShippingAddress.CountryCode)
	assert.Equal(t, domain.TransactionB2C, svc.gotTaxCtx.TransactionType)
}

func TestCalculateHandlerMissingAddress(t *testing.T) {
	h := NewTaxHandler(&mockTaxService{}, nil)

	body := `{"currency": "EUR", "items": [{"quantity": 1, "unit_price": "10.00"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/tax/calculate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateHandlerRejectsUnknownFields(t *testing.T) {
	h := NewTaxHandler(&mockTaxService{}, nil)

	body := `{"currency": "EUR", "items": [], "shipping_address": {"country_code": "DE"}, "surprise": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/tax/calculate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateHandlerServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing rate", domain.Errorf(domain.ENOTFOUND, "tax.rates", "No tax rate configured for zone de"), http.StatusNotFound},
		{"bad input", domain.Errorf(domain.EINVALID, "tax.calculate", "Calculation currency is required"), http.StatusBadRequest},
		{"registry down", domain.Errorf(domain.EUNAVAILABLE, "vat.validate", "VAT validation service is unavailable"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTaxHandler(&mockTaxService{err: tt.err}, nil)

			body := `{"currency": "EUR", "items": [{"quantity": 1, "unit_price": "10.00"}], "shipping_address": {"country_code": "DE"}}`
			req := httptest.NewRequest(http.MethodPost, "/api/tax/calculate", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.Calculate(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestShippingHandler(t *testing.T) {
	svc := &mockTaxService{shipping: &domain.ShippingTaxResult{
		ShippingTax:  decimal.RequireFromString("1.90"),
		TaxRate:      decimal.RequireFromString("0.19"),
		TotalWithTax: decimal.RequireFromString("11.90"),
		Currency:     "EUR",
	}}
	h := NewTaxHandler(svc, nil)

	body := `{"amount": "10.00", "currency": "EUR", "address": {"country_code": "DE"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/tax/shipping", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Shipping(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.9", resp["shipping_tax"])
	assert.Equal(t, "11.9", resp["total_with_tax"])
}

func TestValidateVatHandler(t *testing.T) {
	svc := &mockTaxService{validation: &domain.VatValidationResult{
		VatID:        "DE811569869",
		CountryCode:  "DE",
		IsValid:      true,
		BusinessName: "ACME GmbH",
		ValidatedAt:  time.Now(),
	}}
	h := NewVatHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/vat/validate", strings.NewReader(`{"vat_id": "DE 811 569 869"}`))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "DE811569869", resp["vat_id"])
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, "DE 811 569 869", svc.gotVatID, "normalization is the validator's job")
}

func TestValidateVatHandlerMissingID(t *testing.T) {
	h := NewVatHandler(&mockTaxService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/vat/validate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Validate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOssReportHandler(t *testing.T) {
	svc := &mockTaxService{report: &domain.OssReport{
		Scheme:      domain.OssSchemeUnion,
		Period:      "2025-03",
		MemberState: "DE",
		Countries: []domain.OssCountrySummary{{
			CountryCode:   "FR",
			VatRate:       decimal.RequireFromString("0.2"),
			TaxableAmount: decimal.RequireFromString("1000.00"),
			VatAmount:     decimal.RequireFromString("200.00"),
			Transactions:  5,
		}},
		TotalTaxableAmount: decimal.RequireFromString("1000.00"),
		TotalVatAmount:     decimal.RequireFromString("200.00"),
		TotalTransactions:  5,
		GeneratedAt:        time.Now(),
	}}
	h := NewOssHandler(svc, "DE", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/oss/report?period=2025-03", nil)
	rec := httptest.NewRecorder()
	h.Report(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OssSchemeUnion, svc.gotScheme, "scheme defaults to union")
	assert.Equal(t, "DE", svc.gotState, "member state defaults to the home country")
	assert.Equal(t, "2025-03", svc.gotPeriod)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1000", resp["total_taxable_amount"])
	assert.Equal(t, "200", resp["total_vat_amount"])
	assert.EqualValues(t, 5, resp["total_transactions"])
}

func TestOssReportHandlerMissingPeriod(t *testing.T) {
	h := NewOssHandler(&mockTaxService{}, "DE", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/oss/report", nil)
	rec := httptest.NewRecorder()
	h.Report(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOssReportHandlerExplicitParams(t *testing.T) {
	svc := &mockTaxService{report: &domain.OssReport{}}
	h := NewOssHandler(svc, "DE", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/oss/report?period=2025-01&scheme=import&member_state=FR", nil)
	rec := httptest.NewRecorder()
	h.Report(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OssSchemeImport, svc.gotScheme)
	assert.Equal(t, "FR", svc.gotState)
}
