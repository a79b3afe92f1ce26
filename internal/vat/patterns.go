package vat

import (
	"regexp"
	"strings"

	"github.com/dukerupert/skatt/internal/domain"
)

// vatPatterns maps the two-letter country prefix to the structural pattern
// of the number body. Covers the EU member states plus Northern Ireland
// (XI). Patterns gate the external VIES call: a body that fails its
// pattern is rejected without any network round trip.
var vatPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U\d{8}$`),
	"BE": regexp.MustCompile(`^[01]\d{9}$`),
	"BG": regexp.MustCompile(`^\d{9,10}$`),
	"CY": regexp.MustCompile(`^\d{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^\d{8,10}$`),
	"DE": regexp.MustCompile(`^\d{9}$`),
	"DK": regexp.MustCompile(`^\d{8}$`),
	"EE": regexp.MustCompile(`^\d{9}$`),
	"EL": regexp.MustCompile(`^\d{9}$`),
	"ES": regexp.MustCompile(`^[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^\d{8}$`),
	"FR": regexp.MustCompile(`^[A-Z0-9]{2}\d{9}$`),
	"HR": regexp.MustCompile(`^\d{11}$`),
	"HU": regexp.MustCompile(`^\d{8}$`),
	"IE": regexp.MustCompile(`^(\d{7}[A-W][A-I]?|\d[A-Z+*]\d{5}[A-W])$`),
	"IT": regexp.MustCompile(`^\d{11}$`),
	"LT": regexp.MustCompile(`^(\d{9}|\d{12})$`),
	"LU": regexp.MustCompile(`^\d{8}$`),
	"LV": regexp.MustCompile(`^\d{11}$`),
	"MT": regexp.MustCompile(`^\d{8}$`),
	"NL": regexp.MustCompile(`^\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^\d{10}$`),
	"PT": regexp.MustCompile(`^\d{9}$`),
	"RO": regexp.MustCompile(`^\d{2,10}$`),
	"SE": regexp.MustCompile(`^\d{12}$`),
	"SI": regexp.MustCompile(`^\d{8}$`),
	"SK": regexp.MustCompile(`^\d{10}$`),
	"XI": regexp.MustCompile(`^(\d{9}|\d{12}|(GD|HA)\d{3})$`),
}

// Normalize strips whitespace and common separators from a VAT ID and
// uppercases it. Greece's ISO code GR is rewritten to the EL prefix VIES
// expects.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		switch r {
		case ' ', '\t', '.', '-':
		default:
			b.WriteRune(r)
		}
	}
	id := b.String()
	if strings.HasPrefix(id, "GR") {
		id = "EL" + id[2:]
	}
	return id
}

// Parse normalizes and structurally validates a VAT ID, returning the
// country prefix and number body. No external service is consulted.
func Parse(raw string) (countryCode, number string, err error) {
	id := Normalize(raw)
	if len(id) < 3 {
		return "", "", ErrInvalidFormat
	}

	countryCode, number = id[:2], id[2:]
	pattern, ok := vatPatterns[countryCode]
	if !ok {
		return "", "", domain.Errorf(domain.EINVALID, "vat.parse",
			"Unsupported VAT country prefix: %s", countryCode)
	}
	if !pattern.MatchString(number) {
		return "", "", ErrInvalidFormat
	}
	return countryCode, number, nil
}
