package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/audityzer/finding"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPAnalyzer_Success(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, auditJSON)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL+"/", WithHeader("X-Api-Key", "secret"), WithHTTPLogger(quietLogger()))
	assert.Equal(t, srv.URL, a.Endpoint())

	ctx := ContextWithRequestID(context.Background(), "job-42")
	result, err := a.Analyze(ctx, "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", got.Address)
	assert.Equal(t, "job-42", got.RequestID)
	require.Len(t, result.Vulnerabilities, 2)
	assert.Equal(t, finding.SeverityCritical, result.Vulnerabilities[0].Severity)
	assert.Equal(t, 81.0, result.Metrics.TestCoverage)
}

func TestHTTPAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusBadGateway, "model unavailable", "status 502: model unavailable"},
		{"malformed body", http.StatusOK, "{", "invalid audit response"},
		{"unknown severity", http.StatusOK, `{"vulnerabilities":[{"title":"x","severity":"Severe"}]}`, "invalid audit response"},
		{"long error body is truncated", http.StatusInternalServerError, strings.Repeat("x", 2000), "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewHTTPAnalyzer(srv.URL, WithHTTPLogger(quietLogger())).Analyze(context.Background(), "0xabc")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Less(t, len(err.Error()), 700)
		})
	}
}

func TestHTTPAnalyzer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPAnalyzer(url).Analyze(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send audit request")
}

func TestHTTPAnalyzer_CustomClient(t *testing.T) {
	client := &http.Client{}
	a := NewHTTPAnalyzer("http://example.invalid", WithHTTPClient(client), WithHTTPClient(nil))
	assert.Same(t, client, a.client)
}
