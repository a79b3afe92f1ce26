package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/service"
	"github.com/dukerupert/skatt/internal/tax"
)

// TaxHandler serves the calculation endpoints.
type TaxHandler struct {
	service service.TaxService
	logger  *slog.Logger
}

// NewTaxHandler creates a tax API handler.
func NewTaxHandler(service service.TaxService, logger *slog.Logger) *TaxHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaxHandler{service: service, logger: logger}
}

type addressPayload struct {
	CountryCode string `json:"country_code"`
	RegionCode  string `json:"region_code,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	City        string `json:"city,omitempty"`
}

func (a addressPayload) toDomain() domain.TaxAddress {
	return domain.TaxAddress{
		CountryCode: a.CountryCode,
		RegionCode:  a.RegionCode,
		PostalCode:  a.PostalCode,
		City:        a.City,
	}
}

type itemPayload struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id,omitempty"`
	Quantity      int32           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxCategoryID *uuid.UUID      `json:"tax_category_id,omitempty"`
	IsDigital     bool            `json:"is_digital,omitempty"`
	Title         string          `json:"title,omitempty"`
	SKU           string          `json:"sku,omitempty"`
	Currency      string          `json:"currency,omitempty"`
}

type customerPayload struct {
	CustomerID  *uuid.UUID `json:"customer_id,omitempty"`
	IsTaxExempt bool       `json:"is_tax_exempt,omitempty"`
	VatID       string     `json:"vat_id,omitempty"`
	Exemptions  []string   `json:"exemptions,omitempty"`
}

type calculateRequest struct {
	Currency        string           `json:"currency"`
	TransactionType string           `json:"transaction_type,omitempty"`
	Items           []itemPayload    `json:"items"`
	ShippingAddress *addressPayload  `json:"shipping_address"`
	BillingAddress  *addressPayload  `json:"billing_address,omitempty"`
	Customer        *customerPayload `json:"customer,omitempty"`
	ShippingAmount  decimal.Decimal  `json:"shipping_amount,omitempty"`
	AsOf            *time.Time       `json:"as_of,omitempty"`
}

type lineResponse struct {
	ItemID        uuid.UUID       `json:"item_id"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	ReverseCharge bool            `json:"reverse_charge,omitempty"`
}

type breakdownResponse struct {
	ZoneName      string          `json:"zone_name"`
	RateName      string          `json:"rate_name"`
	Rate          decimal.Decimal `json:"rate"`
	TaxableAmount decimal.Decimal `json:"taxable_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	ReverseCharge bool            `json:"reverse_charge,omitempty"`
}

type calculateResponse struct {
	Lines                []lineResponse      `json:"lines"`
	ShippingTax          decimal.Decimal     `json:"shipping_tax"`
	ShippingTaxRate      decimal.Decimal     `json:"shipping_tax_rate"`
	TotalTax             decimal.Decimal     `json:"total_tax"`
	Breakdown            []breakdownResponse `json:"breakdown"`
	Currency             string              `json:"currency"`
	ReverseChargeApplied bool                `json:"reverse_charge_applied"`
	VatIDValid           *bool               `json:"vat_id_valid,omitempty"`
}

// Calculate handles POST /api/tax/calculate.
func (h *TaxHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if req.ShippingAddress == nil {
		respondError(w, r, service.ErrMissingAddress)
		return
	}

	items := make([]domain.TaxableItem, len(req.Items))
	for i, item := range req.Items {
		id, err := parseOptionalUUID(item.ID)
		if err != nil {
			respondError(w, r, domain.Errorf(domain.EINVALID, "api.calculate", "Invalid item id %q", item.ID))
			return
		}
		productID, err := parseOptionalUUID(item.ProductID)
		if err != nil {
			respondError(w, r, domain.Errorf(domain.EINVALID, "api.calculate", "Invalid product id %q", item.ProductID))
			return
		}
		items[i] = domain.TaxableItem{
			ID:            id,
			ProductID:     productID,
			Quantity:      item.Quantity,
			UnitPrice:     item.UnitPrice,
			TaxCategoryID: item.TaxCategoryID,
			IsDigital:     item.IsDigital,
			Title:         item.Title,
			SKU:           item.SKU,
			Currency:      item.Currency,
		}
	}

	taxCtx := tax.Context{
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress.toDomain(),
		ShippingAmount:  req.ShippingAmount,
		TransactionType: domain.TransactionType(req.TransactionType),
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toDomain()
		taxCtx.BillingAddress = &billing
	}
	if req.Customer != nil {
		taxCtx.Customer = domain.CustomerTaxInfo{
			CustomerID:  req.Customer.CustomerID,
			IsTaxExempt: req.Customer.IsTaxExempt,
			VatID:       req.Customer.VatID,
			Exemptions:  req.Customer.Exemptions,
		}
	}
	if req.AsOf != nil {
		taxCtx.AsOf = *req.AsOf
	}

	calc, err := h.service.CalculateTax(r.Context(), items, taxCtx)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCalculateResponse(calc))
}

type shippingRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Address  *addressPayload `json:"address"`
}

// Shipping handles POST /api/tax/shipping.
func (h *TaxHandler) Shipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Address == nil {
		respondError(w, r, service.ErrMissingAddress)
		return
	}

	result, err := h.service.CalculateShippingTax(r.Context(), req.Amount, req.Address.toDomain(), req.Currency)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"shipping_tax":   result.ShippingTax,
		"tax_rate":       result.TaxRate,
		"total_with_tax": result.TotalWithTax,
		"currency":       result.Currency,
	})
}

func toCalculateResponse(calc *domain.TaxCalculation) calculateResponse {
	resp := calculateResponse{
		Lines:                make([]lineResponse, len(calc.Lines)),
		ShippingTax:          calc.ShippingTax,
		ShippingTaxRate:      calc.ShippingTaxRate,
		TotalTax:             calc.TotalTax,
		Breakdown:            make([]breakdownResponse, len(calc.Breakdown)),
		Currency:             calc.Currency,
		ReverseChargeApplied: calc.ReverseChargeApplied,
		VatIDValid:           calc.VatIDValid,
	}
	for i, line := range calc.Lines {
		resp.Lines[i] = lineResponse{
			ItemID:        line.ItemID,
			TaxableAmount: line.TaxableAmount,
			TaxAmount:     line.TaxAmount,
			TaxRate:       line.TaxRate,
			ReverseCharge: line.ReverseCharge,
		}
	}
	for i, entry := range calc.Breakdown {
		resp.Breakdown[i] = breakdownResponse{
			ZoneName:      entry.ZoneName,
			RateName:      entry.RateName,
			Rate:          entry.Rate,
			TaxableAmount: entry.TaxableAmount,
			TaxAmount:     entry.TaxAmount,
			ReverseCharge: entry.ReverseCharge,
		}
	}
	return resp
}

// parseOptionalUUID treats an empty string as the zero UUID.
func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
