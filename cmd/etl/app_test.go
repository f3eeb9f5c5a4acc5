package main

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/config"
	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRange(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2020, time.April, 15, 10, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	a := &app{cfg: &config.Config{LookbackDays: 30, StartDate: "04-01-2020", EndDate: "04-03-2020"}}
	table := domain.NewTable()

	r, err := a.resolveRange(table, ingestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "04-01-2020..04-03-2020", r.String(), "configured bounds")

	r, err = a.resolveRange(table, ingestOptions{start: "04-10-2020", end: "04-12-2020"})
	require.NoError(t, err)
	assert.Equal(t, "04-10-2020..04-12-2020", r.String(), "flags override config")

	_, err = a.resolveRange(table, ingestOptions{start: "04-10-2020"})
	require.Error(t, err)

	a.cfg.StartDate, a.cfg.EndDate = "", ""
	r, err = a.resolveRange(table, ingestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "03-15-2020..04-14-2020", r.String(), "lookback from yesterday")
}

func TestRunnerReadiness(t *testing.T) {
	r := &runner{}
	require.Error(t, r.CheckReadiness(context.Background()))
	assert.Nil(t, r.LastReport())

	r.ran = true
	assert.NoError(t, r.CheckReadiness(context.Background()))
}
