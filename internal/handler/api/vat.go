package api

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/service"
)

// VatHandler serves the VAT ID validation endpoint.
type VatHandler struct {
	service service.TaxService
	logger  *slog.Logger
}

// NewVatHandler creates a VAT API handler.
func NewVatHandler(service service.TaxService, logger *slog.Logger) *VatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VatHandler{service: service, logger: logger}
}

type validateVatRequest struct {
	VatID string `json:"vat_id"`
}

// Validate handles POST /api/vat/validate.
func (h *VatHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateVatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.VatID == "" {
		respondError(w, r, domain.Errorf(domain.EINVALID, "api.validate_vat", "vat_id is required"))
		return
	}

	result, err := h.service.ValidateVatID(r.Context(), req.VatID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"vat_id":        result.VatID,
		"country_code":  result.CountryCode,
		"valid":         result.IsValid,
		"business_name": result.BusinessName,
		"validated_at":  result.ValidatedAt,
	})
}
