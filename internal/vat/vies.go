package vat

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultViesURL is the production VIES SOAP endpoint.
const DefaultViesURL = "https://ec.europa.eu/taxation_customs/vies/services/checkVatService"

// Verifier confirms a structurally valid VAT ID against an external
// registry. Implementations: ViesClient, MockVerifier.
type Verifier interface {
	// Check performs the external lookup. countryCode and number are the
	// parsed parts of an already normalized VAT ID.
	Check(ctx context.Context, countryCode, number string) (*CheckResult, error)
}

// CheckResult is the external registry's answer for one VAT ID.
type CheckResult struct {
	Valid   bool
	Name    string
	Address string
}

// ViesClient implements Verifier against the EU VIES SOAP service.
// VIES is rate-limited and periodically unavailable per member state;
// every failure mode that is not a definitive validity answer maps to
// ErrServiceUnavailable.
type ViesClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// ViesConfig contains configuration for the VIES client.
type ViesConfig struct {
	URL     string        // defaults to DefaultViesURL
	Timeout time.Duration // per-request timeout, defaults to 8s
	Logger  *slog.Logger
}

// NewViesClient creates a VIES SOAP client.
func NewViesClient(cfg ViesConfig) *ViesClient {
	url := cfg.URL
	if url == "" {
		url = DefaultViesURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ViesClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type checkVatEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	Soapenv string   `xml:"xmlns:soapenv,attr"`
	Urn     string   `xml:"xmlns:urn,attr"`
	Body    struct {
		CheckVat struct {
			CountryCode string `xml:"urn:countryCode"`
			VatNumber   string `xml:"urn:vatNumber"`
		} `xml:"urn:checkVat"`
	} `xml:"soapenv:Body"`
}

type checkVatResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response struct {
			CountryCode string `xml:"countryCode"`
			VatNumber   string `xml:"vatNumber"`
			Valid       bool   `xml:"valid"`
			Name        string `xml:"name"`
			Address     string `xml:"address"`
		} `xml:"checkVatResponse"`
		Fault struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

// Check implements Verifier.
func (c *ViesClient) Check(ctx context.Context, countryCode, number string) (*CheckResult, error) {
	envelope := checkVatEnvelope{
		Soapenv: "http://schemas.xmlsoap.org/soap/envelope/",
		Urn:     "urn:ec.europa.eu:taxud:vies:services:checkVat:types",
	}
	envelope.Body.CheckVat.CountryCode = countryCode
	envelope.Body.CheckVat.VatNumber = number

	payload, err := xml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to build VIES request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build VIES request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("VIES request failed", "country", countryCode, "error", err)
		return nil, ErrServiceUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, ErrServiceUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("VIES returned non-OK status",
			"status", resp.StatusCode,
			"country", countryCode,
			"duration", time.Since(start),
		)
		return nil, ErrServiceUnavailable
	}

	var parsed checkVatResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse VIES response: %w", err)
	}

	if fault := parsed.Body.Fault.String; fault != "" {
		return nil, c.mapFault(fault)
	}

	return &CheckResult{
		Valid:   parsed.Body.Response.Valid,
		Name:    strings.TrimSpace(parsed.Body.Response.Name),
		Address: strings.TrimSpace(parsed.Body.Response.Address),
	}, nil
}

// mapFault translates VIES SOAP fault strings. Everything except a
// rejected input is treated as unavailability so a flaky member-state
// backend is never reported as "VAT ID invalid".
func (c *ViesClient) mapFault(fault string) error {
	switch fault {
	case "INVALID_INPUT":
		return ErrInvalidFormat
	case "MS_UNAVAILABLE", "SERVICE_UNAVAILABLE", "TIMEOUT",
		"GLOBAL_MAX_CONCURRENT_REQ", "MS_MAX_CONCURRENT_REQ", "IP_BLOCKED":
		c.logger.Warn("VIES reported fault", "fault", fault)
		return ErrServiceUnavailable
	default:
		c.logger.Warn("VIES reported unknown fault", "fault", fault)
		return ErrServiceUnavailable
	}
}

// MockVerifier is a test implementation of Verifier.
type MockVerifier struct {
	CheckFunc func(ctx context.Context, countryCode, number string) (*CheckResult, error)

	calls atomic.Int64
}

// Check implements Verifier.
func (m *MockVerifier) Check(ctx context.Context, countryCode, number string) (*CheckResult, error) {
	m.calls.Add(1)
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, countryCode, number)
	}
	return &CheckResult{Valid: true}, nil
}

// CallCount reports how many times Check ran, for asserting cache and
// single-flight behavior.
func (m *MockVerifier) CallCount() int64 {
	return m.calls.Load()
}
