package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantLen int
		wantErr error
	}{
		{name: "single day", start: "01-22-2020", end: "01-22-2020", wantLen: 1},
		{name: "across leap day", start: "02-27-2020", end: "03-02-2020", wantLen: 5},
		{name: "across year end", start: "12-30-2020", end: "01-02-2021", wantLen: 4},
		{name: "iso format rejected", start: "2020-01-22", end: "01-23-2020", wantErr: ErrInvalidDateFormat},
		{name: "bad end", start: "01-22-2020", end: "13-01-2020", wantErr: ErrInvalidDateFormat},
		{name: "start after end", start: "03-10-2020", end: "01-22-2020", wantErr: ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseDateRange(tt.start, tt.end)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, r.Len())
			assert.Len(t, r.Dates(), tt.wantLen)
		})
	}
}

func TestDateRange_All(t *testing.T) {
	r, err := ParseDateRange("02-27-2020", "03-02-2020")
	require.NoError(t, err)

	first := r.Dates()
	second := r.Dates()
	assert.Equal(t, first, second, "sequence must be restartable")

	require.Len(t, first, 5)
	assert.Equal(t, "02-27-2020", FormatDate(first[0]))
	assert.Equal(t, "02-29-2020", FormatDate(first[2]))
	assert.Equal(t, "03-02-2020", FormatDate(first[4]))
	for i := 1; i < len(first); i++ {
		assert.Equal(t, 24*time.Hour, first[i].Sub(first[i-1]))
	}
}

func TestDateRange_All_StopsEarly(t *testing.T) {
	r, err := ParseDateRange("01-01-2021", "01-31-2021")
	require.NoError(t, err)

	var seen int
	for range r.All() {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestNewDateRange_DropsTimeOfDay(t *testing.T) {
	r, err := NewDateRange(
		time.Date(2020, 3, 10, 23, 0, 0, 0, time.UTC),
		time.Date(2020, 3, 10, 1, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "03-10-2020..03-10-2020", r.String())
}

func TestDefaultRange(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2020, 4, 13, 10, 30, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	t.Run("nothing merged uses lookback", func(t *testing.T) {
		r, err := DefaultRange(time.Time{}, false, 30)
		require.NoError(t, err)
		assert.Equal(t, "03-13-2020", FormatDate(r.Start()))
		assert.Equal(t, "04-12-2020", FormatDate(r.End()))
	})

	t.Run("resumes after last merged", func(t *testing.T) {
		r, err := DefaultRange(time.Date(2020, 4, 9, 0, 0, 0, 0, time.UTC), true, 30)
		require.NoError(t, err)
		assert.Equal(t, "04-10-2020", FormatDate(r.Start()))
		assert.Equal(t, 3, r.Len())
	})

	t.Run("up to date", func(t *testing.T) {
		_, err := DefaultRange(time.Date(2020, 4, 12, 0, 0, 0, 0, time.UTC), true, 30)
		require.ErrorIs(t, err, ErrUpToDate)
	})
}
