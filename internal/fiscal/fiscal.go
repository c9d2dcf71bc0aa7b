// Package fiscal posts committed sales to an external fiscal printer service.
package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nexuspos/internal/domain"
)

const (
	apiKeyHeader     = "X-API-Key"
	maxResponseBytes = 64 << 10

	defaultSuccessMessage = "Successfully synced with fiscal printer."
)

var ErrInvalidEndpoint = errors.New("invalid or missing endpoint URL in settings")

// NewTracedHTTPClient wraps base with otelhttp so outbound calls carry trace context.
// A nil base uses http.DefaultTransport.
func NewTracedHTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: otelhttp.NewTransport(base)}
}

type Client struct {
	http   *http.Client
	apiKey string
}

// NewClient returns a syncer authenticating with apiKey. Timeouts come from the
// caller's context, so httpClient should not set its own.
func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewTracedHTTPClient(nil)
	}
	return &Client{http: httpClient, apiKey: apiKey}
}

// Sync posts payload once. A non-2xx reply is reported as an unsuccessful result;
// transport problems come back as errors. Nothing is retried.
func (c *Client) Sync(ctx context.Context, endpoint string, payload domain.FiscalPayload) (domain.FiscalResult, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return domain.FiscalResult{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.FiscalResult{}, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.FiscalResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.FiscalResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.FiscalResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.FiscalResult{
			Success: false,
			Message: fmt.Sprintf("Sync failed: fiscal endpoint responded with status %d", resp.StatusCode),
		}, nil
	}

	var reply struct {
		Message string `json:"message"`
	}
	// the body is informational only
	_ = json.Unmarshal(data, &reply)
	message := strings.TrimSpace(reply.Message)
	if message == "" {
		message = defaultSuccessMessage
	}
	return domain.FiscalResult{Success: true, Message: message}, nil
}

// ValidateEndpoint accepts absolute http and https URLs.
func ValidateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidEndpoint
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidEndpoint
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidEndpoint
	}
	return nil
}
