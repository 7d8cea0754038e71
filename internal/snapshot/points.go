package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
)

// Points is a fantasy score in hundredths of a point.
//
// Upstream scores arrive as floats (10, 10.0, 9.999999); rounding them into
// Points makes equal scores compare and serialize identically.
type Points int64

// PointsFromFloat rounds f to the nearest hundredth.
func PointsFromFloat(f float64) Points {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Points(math.Round(f * 100))
}

// Float64 returns p as a float.
func (p Points) Float64() float64 {
	return float64(p) / 100
}

// String renders p with at most two decimals and no trailing zeros.
func (p Points) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', -1, 64)
}

// MarshalJSON encodes p as a JSON number.
func (p Points) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON decodes a JSON number into p, rounding to hundredths.
func (p *Points) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = PointsFromFloat(f)
	return nil
}
