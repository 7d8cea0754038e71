package snapshot

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPointsFromFloat verifies rounding to hundredths and that equivalent
// float renderings collapse to the same value.
func TestPointsFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want Points
	}{
		{10, 1000},
		{10.0000001, 1000},
		{9.999999, 1000},
		{7.25, 725},
		{-1.5, -150},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PointsFromFloat(tt.in), "input %v", tt.in)
	}
}

// TestPoints_JSON verifies Points encode as plain JSON numbers.
func TestPoints_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Points{"a": 1550, "b": 1000, "c": 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":15.5,"b":10,"c":0}`, string(data))

	var p Points
	require.NoError(t, json.Unmarshal([]byte(`12.346`), &p))
	assert.Equal(t, Points(1235), p)
}

// TestParseWatchKey verifies path parameter validation.
func TestParseWatchKey(t *testing.T) {
	key, err := ParseWatchKey("123", "7")
	require.NoError(t, err)
	assert.Equal(t, WatchKey{LeagueID: "123", Week: 7}, key)
	assert.Equal(t, "123-7", key.String())

	for _, tc := range []struct{ league, week string }{
		{"", "1"},
		{"123", "abc"},
		{"123", "0"},
		{"123", "26"},
	} {
		_, err := ParseWatchKey(tc.league, tc.week)
		assert.Error(t, err, "league=%q week=%q", tc.league, tc.week)
	}
}
