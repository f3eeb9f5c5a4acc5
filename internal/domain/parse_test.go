package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindsOf(raw RawSnapshot) map[string]Kind {
	out := make(map[string]Kind, len(raw.Columns))
	for _, c := range raw.Columns {
		out[c.Name] = c.Kind
	}
	return out
}

func TestParseSnapshot_InfersKinds(t *testing.T) {
	data := "\ufeffProvince_State, Confirmed,Incident_Rate,Last_Update,FIPS\n" +
		"New York,188694,969.9,2020-04-12 23:18:15,\n" +
		"Washington,,140.6,2020-04-12 23:18:15,\n"

	raw, err := ParseSnapshot([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, map[string]Kind{
		"Province_State": KindText,
		"Confirmed":      KindInt,
		"Incident_Rate":  KindFloat,
		"Last_Update":    KindText,
		"FIPS":           KindUnknown,
	}, kindsOf(raw))
	require.Len(t, raw.Records, 2)
	assert.Equal(t, "Province_State", raw.Columns[0].Name, "BOM stripped")
}

func TestParseSnapshot_RaggedRecords(t *testing.T) {
	data := "Province_State,Confirmed,Deaths\n" +
		"Alabama,10\n" +
		"Alaska,5,0,extra\n" +
		",,\n"

	raw, err := ParseSnapshot([]byte(data))
	require.NoError(t, err)

	require.Len(t, raw.Records, 2, "blank records skipped")
	assert.Equal(t, []string{"Alabama", "10", ""}, raw.Records[0])
	assert.Equal(t, []string{"Alaska", "5", "0"}, raw.Records[1])
}

func TestParseSnapshot_HeaderOnly(t *testing.T) {
	raw, err := ParseSnapshot([]byte("Province_State,Confirmed\n"))
	require.NoError(t, err)

	assert.Empty(t, raw.Records)
	assert.Equal(t, map[string]Kind{"Province_State": KindUnknown, "Confirmed": KindUnknown}, kindsOf(raw))
}

func TestParseSnapshot_Errors(t *testing.T) {
	_, err := ParseSnapshot(nil)
	require.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = ParseSnapshot([]byte("Province_State,Confirmed\n\"New York,1\n"))
	require.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"1/22/2020 17:00", time.Date(2020, 1, 22, 17, 0, 0, 0, time.UTC)},
		{"3/22/20 23:45", time.Date(2020, 3, 22, 23, 45, 0, 0, time.UTC)},
		{"2020-03-10T19:13:15", time.Date(2020, 3, 10, 19, 13, 15, 0, time.UTC)},
		{"2020-04-12 23:18:15", time.Date(2020, 4, 12, 23, 18, 15, 0, time.UTC)},
		{"2021-01-02T05:30:27Z", time.Date(2021, 1, 2, 5, 30, 27, 0, time.UTC)},
		{" 2020-06-01 ", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("yesterday")
	require.Error(t, err)
}
