package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/covid-report-etl/internal/adapter/http"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStatus struct {
	report *domain.RunReport
}

func (m *mockStatus) LastReport() *domain.RunReport { return m.report }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockStatus{}, slog.Default())
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		readyErr  error
		wantCode  int
		wantState string
		wantError string
	}{
		{name: "healthz", path: "/healthz", wantCode: http.StatusOK, wantState: "healthy"},
		{name: "readyz after a run", path: "/readyz", wantCode: http.StatusOK, wantState: "ready"},
		{
			name:      "readyz before a run",
			path:      "/readyz",
			readyErr:  errors.New("no ingestion run has completed yet"),
			wantCode:  http.StatusServiceUnavailable,
			wantState: "not ready",
			wantError: "no ingestion run has completed yet",
		},
		{
			name:      "healthz ignores readiness",
			path:      "/healthz",
			readyErr:  errors.New("checkpoint locked"),
			wantCode:  http.StatusOK,
			wantState: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.readyErr)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body["status"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusReturns404BeforeFirstRun(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusSummarizesLastRun(t *testing.T) {
	r, err := domain.ParseDateRange("01-22-2020", "01-23-2020")
	require.NoError(t, err)
	dates := r.Dates()
	report := &domain.RunReport{
		Range: r,
		Results: []domain.DateResult{
			{Date: dates[0], State: domain.StateMerged, Rows: 2, Added: []string{"Province_State"}},
			{Date: dates[1], State: domain.StateSkipped},
		},
	}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockStatus{report: report}, slog.Default())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Range  string         `json:"range"`
		States map[string]int `json:"states"`
		Rows   int            `json:"rows_merged"`
		Added  []string       `json:"columns_added"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "01-22-2020..01-23-2020", body.Range)
	assert.Equal(t, map[string]int{"merged": 1, "skipped": 1}, body.States)
	assert.Equal(t, 2, body.Rows)
	assert.Equal(t, []string{"Province_State"}, body.Added)
}
