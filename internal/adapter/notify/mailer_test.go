package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(t *testing.T) *domain.RunReport {
	t.Helper()
	r, err := domain.ParseDateRange("01-22-2020", "01-24-2020")
	require.NoError(t, err)
	dates := r.Dates()
	start := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	return &domain.RunReport{
		Range:      r,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Results: []domain.DateResult{
			{Date: dates[0], State: domain.StateMerged, Rows: 2, Added: []string{"Province_State"}, Renamed: map[string]string{"Province/State": "Province_State"}},
			{Date: dates[1], State: domain.StateSkipped, Status: domain.StatusNotFound},
			{Date: dates[2], State: domain.StateSkippedWithWarning, Err: errors.New("source returned status 503")},
		},
	}
}

func TestSubject(t *testing.T) {
	r := testReport(t)
	assert.Equal(t, "[covid-report-etl] "+r.Range.String()+": 1 dates merged, completed with warnings", Subject(r))

	r.Err = domain.ErrStorage
	assert.Contains(t, Subject(r), "FAILED")
}

func TestBody(t *testing.T) {
	body := Body(testReport(t))

	assert.Contains(t, body, "Merged:     1 dates, 2 rows")
	assert.Contains(t, body, "Skipped:    1 not published, 1 with warnings, 0 already merged")
	assert.Contains(t, body, "New columns: Province_State")
	assert.Contains(t, body, "Duration:   1.5s")
	assert.Contains(t, body, "01-22-2020  renamed: Province/State -> Province_State")
	assert.Contains(t, body, "01-24-2020  skipped: source returned status 503")
	assert.NotContains(t, body, "Run aborted")
}
