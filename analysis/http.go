package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zero-day-ai/audityzer/finding"
)

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// Request is the body sent to an HTTP audit endpoint.
type Request struct {
	RequestID string `json:"requestId"`
	Address   string `json:"address"`
}

// HTTPAnalyzer posts the address to an audit endpoint and decodes the
// AuditResult it answers with.
type HTTPAnalyzer struct {
	endpoint string
	client   *http.Client
	header   http.Header
	logger   *slog.Logger
}

// HTTPOption configures an HTTPAnalyzer.
type HTTPOption func(*HTTPAnalyzer)

// WithHTTPClient sets the client used for requests. The default client has
// no timeout.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAnalyzer) {
		if c != nil {
			a.client = c
		}
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(a *HTTPAnalyzer) {
		a.header.Add(key, value)
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(a *HTTPAnalyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewHTTPAnalyzer returns an analyzer posting to endpoint.
func NewHTTPAnalyzer(endpoint string, opts ...HTTPOption) *HTTPAnalyzer {
	a := &HTTPAnalyzer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{},
		header:   make(http.Header),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Endpoint returns the audit endpoint URL.
func (a *HTTPAnalyzer) Endpoint() string {
	return a.endpoint
}

// Analyze performs one POST. Non-2xx answers and undecodable bodies are
// errors.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, address string) (*finding.AuditResult, error) {
	payload, err := json.Marshal(Request{RequestID: RequestID(ctx), Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = a.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send audit request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Warn("failed to close resource", "resource", "audit HTTP response", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, fmt.Errorf("audit endpoint returned status %d: %s", resp.StatusCode, msg)
	}

	result, err := finding.DecodeResult(body)
	if err != nil {
		return nil, fmt.Errorf("invalid audit response: %w", err)
	}
	for _, w := range result.Warnings() {
		a.logger.WarnContext(ctx, "audit result inconsistency", "address", address, "warning", w)
	}
	return result, nil
}
