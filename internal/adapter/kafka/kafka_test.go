package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(t *testing.T) (domain.Schema, domain.Row) {
	t.Helper()
	schema := domain.NewSchema(
		domain.Column{Name: "Province_State", Kind: domain.KindText},
		domain.Column{Name: "Confirmed", Kind: domain.KindInt},
		domain.Column{Name: "Incidence_Rate", Kind: domain.KindFloat},
	)
	date, err := domain.ParseDate("04-12-2020")
	require.NoError(t, err)
	return schema, domain.Row{ReportDate: date, Values: []domain.Value{
		{Kind: domain.KindText, Text: "Washington"},
		{Kind: domain.KindInt, Int: 10224},
		{Kind: domain.KindFloat, Float: 134.27},
	}}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	schema, row := testRow(t)

	msg, err := serializeToMessage(schema, row, "Province_State", now)
	require.NoError(t, err)

	assert.Equal(t, []byte("Washington"), msg.Key)
	assert.JSONEq(t, `{"Province_State":"Washington","Confirmed":10224,"Incidence_Rate":134.27,"report_date":"2020-04-12"}`, string(msg.Value))
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "report_date", msg.Headers[0].Key)
	assert.Equal(t, []byte("2020-04-12"), msg.Headers[0].Value)
	assert.Equal(t, []byte("3"), msg.Headers[1].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}

func TestSerializeToMessage_KeyFallsBackToReportDate(t *testing.T) {
	schema, row := testRow(t)

	msg, err := serializeToMessage(schema, row, "Admin2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, []byte("2020-04-12"), msg.Key)
}
