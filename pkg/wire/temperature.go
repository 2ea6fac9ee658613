package wire

import "math"

// AbsentTempRaw is the sentinel raw value the controller reports for a
// probe that is not connected (e.g. a mixed circuit without a supply
// sensor). Readings carrying it must be skipped, not decoded.
const AbsentTempRaw = 32767

// EncodeTemp converts a Celsius temperature to the vendor raw unit
// (tenths of a degree Fahrenheit).
func EncodeTemp(celsius float64) int {
	return int(math.Round(celsius*1.8*10)) + 320
}

// DecodeTemp converts a vendor raw temperature back to Celsius,
// rounded to one decimal.
func DecodeTemp(raw float64) float64 {
	c := (raw/10 - 32) / 1.8
	return math.Round(c*10) / 10
}
