package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for tax-engine observability.
type Metrics struct {
	// Calculations
	CalculationsTotal    *prometheus.CounterVec // labels: status
	CalculationDuration  prometheus.Histogram
	ReverseChargeApplied prometheus.Counter
	RateFallbacks        prometheus.Counter // fail-open zero-tax fallbacks

	// VAT validation
	VatValidationsTotal *prometheus.CounterVec // labels: result
	VatCacheHits        prometheus.Counter
	VatCacheMisses      prometheus.Counter
	ViesLatency         prometheus.Histogram

	// OSS reporting
	OssReportsTotal   *prometheus.CounterVec // labels: status
	OssReportDuration prometheus.Histogram
}

// NewMetrics creates and registers all tax engine metrics with the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CalculationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tax_calculations_total",
			Help: "Tax calculations by outcome status.",
		}, []string{"status"}),
		CalculationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tax_calculation_duration_seconds",
			Help:    "Tax calculation latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ReverseChargeApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "tax_reverse_charge_applied_total",
			Help: "Calculations where cross-border B2B reverse charge zero-rated the invoice.",
		}),
		RateFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tax_rate_fallbacks_total",
			Help: "Calculations that fell back to zero tax under the fail-open policy.",
		}),
		VatValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tax_vat_validations_total",
			Help: "VAT ID validations by result (valid, invalid, invalid_format, unavailable).",
		}, []string{"result"}),
		VatCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "tax_vat_cache_hits_total",
			Help: "VAT validations answered from cache.",
		}),
		VatCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tax_vat_cache_misses_total",
			Help: "VAT validations requiring an external lookup.",
		}),
		ViesLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tax_vies_request_duration_seconds",
			Help:    "VIES external call latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		OssReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tax_oss_reports_total",
			Help: "OSS report generations by outcome status.",
		}, []string{"status"}),
		OssReportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tax_oss_report_duration_seconds",
			Help:    "OSS report generation latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveCalculation records one calculation outcome.
func (m *Metrics) ObserveCalculation(status string, start time.Time) {
	if m == nil {
		return
	}
	m.CalculationsTotal.WithLabelValues(status).Inc()
	m.CalculationDuration.Observe(time.Since(start).Seconds())
}

// ObserveVatValidation records one validation outcome.
func (m *Metrics) ObserveVatValidation(result string) {
	if m == nil {
		return
	}
	m.VatValidationsTotal.WithLabelValues(result).Inc()
}

// RateFallback records one fail-open zero-tax fallback.
func (m *Metrics) RateFallback() {
	if m == nil {
		return
	}
	m.RateFallbacks.Inc()
}

// VatCacheHit records a validation answered from cache.
func (m *Metrics) VatCacheHit() {
	if m == nil {
		return
	}
	m.VatCacheHits.Inc()
}

// VatCacheMiss records a validation that required an external lookup.
func (m *Metrics) VatCacheMiss() {
	if m == nil {
		return
	}
	m.VatCacheMisses.Inc()
}

// ObserveViesLookup records the latency of one VIES round trip.
func (m *Metrics) ObserveViesLookup(start time.Time) {
	if m == nil {
		return
	}
	m.ViesLatency.Observe(time.Since(start).Seconds())
}

// ObserveOssReport records one report generation outcome.
func (m *Metrics) ObserveOssReport(status string, start time.Time) {
	if m == nil {
		return
	}
	m.OssReportsTotal.WithLabelValues(status).Inc()
	m.OssReportDuration.Observe(time.Since(start).Seconds())
}
