package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/couchcryptid/covid-report-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string, metrics *observability.Metrics) *Client {
	return NewClient(ClientOptions{BaseURL: baseURL, Timeout: 5 * time.Second}, discardLogger(), metrics)
}

func mar10(t *testing.T) time.Time {
	t.Helper()
	d, err := domain.ParseDate("03-10-2020")
	require.NoError(t, err)
	return d
}

func TestClient_Get_RequestsDatedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/03-10-2020.csv", r.URL.Path)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, "Province_State,Confirmed\nWashington,267\n")
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	resp, err := testClient(srv.URL, metrics).Get(context.Background(), mar10(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "Washington")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FetchRequests.WithLabelValues("200")), 1e-9)
}

func TestClient_Get_StatusClassification(t *testing.T) {
	tests := []struct {
		code    int
		wantErr bool
	}{
		{code: http.StatusNotFound},
		{code: http.StatusForbidden},
		{code: http.StatusInternalServerError, wantErr: true},
		{code: http.StatusServiceUnavailable, wantErr: true},
		{code: http.StatusTooManyRequests, wantErr: true},
		{code: http.StatusRequestTimeout, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			resp, err := testClient(srv.URL, observability.NewMetricsForTesting()).Get(context.Background(), mar10(t))
			assert.Equal(t, tt.code, resp.StatusCode)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	metrics := observability.NewMetricsForTesting()
	c := testClient(srv.URL, metrics)
	for range 5 {
		_, err := c.Get(context.Background(), mar10(t))
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), mar10(t))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), calls.Load(), "open breaker short-circuits the request")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.BreakerOpen), 1e-9)
}
