package api

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/skatt/internal/domain"
	"github.com/dukerupert/skatt/internal/service"
)

// OssHandler serves the OSS reporting endpoint.
type OssHandler struct {
	service service.TaxService
	logger  *slog.Logger

	// homeCountry is the default member state of identification when the
	// request does not name one.
	homeCountry string
}

// NewOssHandler creates an OSS API handler.
func NewOssHandler(service service.TaxService, homeCountry string, logger *slog.Logger) *OssHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OssHandler{service: service, logger: logger, homeCountry: homeCountry}
}

// Report handles GET /api/oss/report?period=2025-01&scheme=union.
func (h *OssHandler) Report(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		respondError(w, r, service.ErrInvalidPeriod)
		return
	}

	scheme := domain.OssScheme(r.URL.Query().Get("scheme"))
	if scheme == "" {
		scheme = domain.OssSchemeUnion
	}

	memberState := r.URL.Query().Get("member_state")
	if memberState == "" {
		memberState = h.homeCountry
	}

	report, err := h.service.GenerateOssReport(r.Context(), scheme, period, memberState)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toOssResponse(report))
}

type ossCountryResponse struct {
	CountryCode   string `json:"country_code"`
	VatRate       string `json:"vat_rate"`
	TaxableAmount string `json:"taxable_amount"`
	VatAmount     string `json:"vat_amount"`
	Transactions  int    `json:"transactions"`
}

func toOssResponse(report *domain.OssReport) map[string]any {
	countries := make([]ossCountryResponse, len(report.Countries))
	for i, c := range report.Countries {
		countries[i] = ossCountryResponse{
			CountryCode:   c.CountryCode,
			VatRate:       c.VatRate.String(),
			TaxableAmount: c.TaxableAmount.String(),
			VatAmount:     c.VatAmount.String(),
			Transactions:  c.Transactions,
		}
	}
	return map[string]any{
		"scheme":               report.Scheme,
		"period":               report.Period,
		"member_state":         report.MemberState,
		"countries":            countries,
		"total_taxable_amount": report.TotalTaxableAmount.String(),
		"total_vat_amount":     report.TotalVatAmount.String(),
		"total_transactions":   report.TotalTransactions,
		"generated_at":         report.GeneratedAt,
	}
}
