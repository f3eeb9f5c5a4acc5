package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *domain.Table {
	t.Helper()
	table := domain.NewTable()
	for _, snap := range []struct{ date, body string }{
		{"01-22-2020", "Province/State,Confirmed,Deaths\nWashington,1,0\nIllinois,2,0\n"},
		{"03-10-2020", "Province_State,Confirmed,Deaths,Incidence_Rate,Last_Update\nWashington,267,24,3.5,2020-03-10T19:13:15\n"},
	} {
		d, err := domain.ParseDate(snap.date)
		require.NoError(t, err)
		raw, err := domain.ParseSnapshot([]byte(snap.body))
		require.NoError(t, err)
		rec := domain.Reconcile(table.Schema(), raw.Columns, domain.DefaultRules())
		rows, _ := domain.Normalize(raw, rec, d)
		_, err = table.Merge(d, rec.Schema, rows)
		require.NoError(t, err)
	}
	return table
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "covid.db")
	table := testTable(t)

	n, err := Export(context.Background(), path, table)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM daily_reports`).Scan(&count))
	assert.Equal(t, 3, count)

	var confirmed int64
	var rate float64
	var updated sql.NullString
	require.NoError(t, db.QueryRow(
		`SELECT "Confirmed", "Incidence_Rate", "Last_Update" FROM daily_reports WHERE report_date = ? AND "Province_State" = ?`,
		"2020-03-10", "Washington").Scan(&confirmed, &rate, &updated))
	assert.Equal(t, int64(267), confirmed)
	assert.InDelta(t, 3.5, rate, 1e-9)
	assert.Equal(t, "2020-03-10T19:13:15Z", updated.String)

	require.NoError(t, db.QueryRow(
		`SELECT "Last_Update" FROM daily_reports WHERE report_date = ? AND "Province_State" = ?`,
		"2020-01-22", "Illinois").Scan(&updated))
	assert.False(t, updated.Valid, "missing timestamps export as NULL")

	rows, err := db.Query(`SELECT name, kind FROM canonical_columns ORDER BY position`)
	require.NoError(t, err)
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name, kind string
		require.NoError(t, rows.Scan(&name, &kind))
		cols = append(cols, name+":"+kind)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"Province_State:text", "Confirmed:int", "Deaths:int", "Incidence_Rate:float", "Last_Update:time",
	}, cols)
}

func TestExport_ReplacesPreviousExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "covid.db")
	table := testTable(t)

	_, err := Export(context.Background(), path, table)
	require.NoError(t, err)
	n, err := Export(context.Background(), path, table)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoFileExists(t, path+".tmp")
}

func TestCreateReportsSQL_QuotesNames(t *testing.T) {
	schema := domain.NewSchema(domain.Column{Name: `Odd "Name"`, Kind: domain.KindFloat})
	assert.Contains(t, createReportsSQL(schema), `"Odd ""Name""" REAL`)
}
