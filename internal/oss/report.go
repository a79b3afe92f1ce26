package oss

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/skatt/internal/domain"
)

// TransactionStore is the read-only historical store of calculated tax
// transactions. The report generator never recomputes tax: OSS declares
// what was charged at calculation time.
type TransactionStore interface {
	// TransactionsForPeriod returns all transactions for a scheme whose
	// CalculatedAt falls in [From, To).
	TransactionsForPeriod(ctx context.Context, q Query) ([]domain.TaxTransaction, error)
}

// Query selects transactions for one reporting period.
type Query struct {
	From   time.Time
	To     time.Time
	Scheme domain.OssScheme
}

// euCountries holds the ISO alpha-2 codes of the EU member states.
// Transactions destined outside the EU never enter an OSS declaration.
var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "CY": {}, "CZ": {}, "DE": {}, "DK": {},
	"EE": {}, "ES": {}, "FI": {}, "FR": {}, "GR": {}, "HR": {}, "HU": {},
	"IE": {}, "IT": {}, "LT": {}, "LU": {}, "LV": {}, "MT": {}, "NL": {},
	"PL": {}, "PT": {}, "RO": {}, "SE": {}, "SI": {}, "SK": {},
}

// Generator aggregates historical tax transactions into One-Stop-Shop
// declarations grouped by destination country and VAT rate.
type Generator struct {
	store  TransactionStore
	logger *slog.Logger

	// includeReverseCharge keeps reverse-charged transactions in the
	// declaration. Default OSS rules exclude them (the buyer declares).
	includeReverseCharge bool

	now func() time.Time
}

// GeneratorConfig contains configuration for the report generator.
type GeneratorConfig struct {
	Store                TransactionStore
	IncludeReverseCharge bool
	Logger               *slog.Logger
}

// NewGenerator creates an OSS report generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:                cfg.Store,
		logger:               logger,
		includeReverseCharge: cfg.IncludeReverseCharge,
		now:                  time.Now,
	}
}

// WithClock overrides the generator's clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the OSS declaration for a scheme, period ("YYYY-MM")
// and home member state. Pure aggregation over stored amounts. A store
// failure surfaces EUNAVAILABLE; partial reports are never returned
// silently.
func (g *Generator) Generate(ctx context.Context, scheme domain.OssScheme, period, memberState string) (*domain.OssReport, error) {
	switch scheme {
	case domain.OssSchemeUnion, domain.OssSchemeNonUnion, domain.OssSchemeImport:
	default:
		return nil, domain.Errorf(domain.EINVALID, "oss.generate", "Unknown OSS scheme: %s", scheme)
	}

	from, err := time.Parse("2006-01", period)
	if err != nil {
		return nil, domain.Errorf(domain.EINVALID, "oss.generate", "Invalid reporting period %q, expected YYYY-MM", period)
	}
	to := from.AddDate(0, 1, 0)

	memberState = strings.ToUpper(strings.TrimSpace(memberState))
	if _, ok := euCountries[memberState]; !ok {
		return nil, domain.Errorf(domain.EINVALID, "oss.generate", "Member state %q is not an EU country", memberState)
	}

	transactions, err := g.store.TransactionsForPeriod(ctx, Query{From: from, To: to, Scheme: scheme})
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "oss.generate", "Report generation failed: historical store unreachable")
	}

	report := &domain.OssReport{
		Scheme:             scheme,
		Period:             period,
		MemberState:        memberState,
		TotalTaxableAmount: decimal.Zero,
		TotalVatAmount:     decimal.Zero,
		GeneratedAt:        g.now(),
	}

	type groupKey struct {
		country string
		rate    string
	}
	groups := make(map[groupKey]*domain.OssCountrySummary)

	skippedReverse := 0
	for _, tx := range transactions {
		country := strings.ToUpper(tx.DestinationCountry)
		if _, ok := euCountries[country]; !ok {
			continue
		}
		if tx.ReverseCharge && !g.includeReverseCharge {
			skippedReverse++
			continue
		}

		key := groupKey{country: country, rate: tx.VatRate.String()}
		summary, ok := groups[key]
		if !ok {
			summary = &domain.OssCountrySummary{
				CountryCode:   country,
				VatRate:       tx.VatRate,
				TaxableAmount: decimal.Zero,
				VatAmount:     decimal.Zero,
			}
			groups[key] = summary
		}
		summary.TaxableAmount = summary.TaxableAmount.Add(tx.TaxableAmount)
		summary.VatAmount = summary.VatAmount.Add(tx.TaxAmount)
		summary.Transactions++
	}

	for _, summary := range groups {
		report.Countries = append(report.Countries, *summary)
		report.TotalTaxableAmount = report.TotalTaxableAmount.Add(summary.TaxableAmount)
		report.TotalVatAmount = report.TotalVatAmount.Add(summary.VatAmount)
		report.TotalTransactions += summary.Transactions
	}

	sort.Slice(report.Countries, func(i, j int) bool {
		a, b := report.Countries[i], report.Countries[j]
		if a.CountryCode != b.CountryCode {
			return a.CountryCode < b.CountryCode
		}
		return a.VatRate.LessThan(b.VatRate)
	})

	g.logger.Info("OSS report generated",
		"scheme", scheme,
		"period", period,
		"member_state", memberState,
		"countries", len(report.Countries),
		"transactions", report.TotalTransactions,
		"reverse_charge_excluded", skippedReverse,
	)

	return report, nil
}
