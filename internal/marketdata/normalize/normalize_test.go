package normalize

import (
	"testing"

	"marketlens/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFromJSON_RejectsInvalidAndSorts(t *testing.T) {
	raw := []byte(`[
		{"timestamp": 180, "open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10},
		{"timestamp": 60,  "open": 1, "high": 1.2, "low": 0.5, "close": 1.5},
		{"timestamp": 120, "open": 1, "high": 2, "low": 0.5, "close": 1.1},
		{"timestamp": 240, "open": 0, "high": 2, "low": 0.5, "close": 1.1},
		{"timestamp": 300, "open": 1, "high": 2, "low": 1.05, "close": 1.1},
		{"open": 1, "high": 2, "low": 0.5, "close": 1.1},
		{"timestamp": 360, "open": "1", "high": "2", "low": "0.5", "close": "NaN"}
	]`)

	bars, err := FromJSON(raw)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, int64(120), bars[0].Time)
	require.Equal(t, int64(180), bars[1].Time)
	require.Equal(t, 10.0, bars[1].Volume)
}

func TestBars_DuplicateFirstOccurrenceWins(t *testing.T) {
	in := []model.Bar{
		{Time: 120, Open: 5, High: 6, Low: 4, Close: 5},
		{Time: 60, Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 120, Open: 9, High: 9, Low: 9, Close: 9},
	}
	out := Bars(in)
	require.Len(t, out, 2)
	require.Equal(t, int64(60), out[0].Time)
	require.Equal(t, 5.0, out[1].Open)
}

func TestBars_Idempotent(t *testing.T) {
	in := []model.Bar{
		{Time: 300, Open: 3, High: 4, Low: 2, Close: 3},
		{Time: 60, Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 60, Open: 7, High: 8, Low: 6, Close: 7},
		{Time: 120, Open: 2, High: 1, Low: 1, Close: 2},
	}
	once := Bars(in)
	require.Equal(t, once, Bars(once))
}

func TestTimestamp_StringForms(t *testing.T) {
	cases := map[string]int64{
		`{"date":"2024-01-02"}`:                   1704153600,
		`{"datetime":"2024-01-02 00:01:00"}`:      1704153660,
		`{"datetime":"2024-01-02T02:01:00+02:00"}`: 1704153660,
		`{"timestamp":1704153660000}`:             1704153660,
		`{"t":"1704153660"}`:                      1704153660,
	}
	for in, want := range cases {
		recs, err := Records([]byte("[" + in + "]"))
		require.NoError(t, err)
		got, ok := Timestamp(recs[0])
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
}

func TestRecords_WrappedAndMalformed(t *testing.T) {
	recs, err := Records([]byte(`{"data":[{"t":1},{"t":2}]}`))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	_, err = Records([]byte(`{"error":"limit"}`))
	require.ErrorIs(t, err, model.ErrUpstream)

	_, err = Records([]byte(`not json`))
	require.ErrorIs(t, err, model.ErrUpstream)
}
