package prefix

import (
	"math"
	"strconv"
	"strings"
)

// Grid4FromLatLon returns the 4-character Maidenhead grid for a lat/lon pair.
// It returns false when coordinates are out of range or non-finite.
func Grid4FromLatLon(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "", false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false
	}
	// Clamp the north and east edges into the last square.
	lat = math.Min(lat, 89.999999)
	lon = math.Min(lon, 179.999999)
	x := lon + 180
	y := lat + 90
	field := [2]int{int(x / 20), int(y / 10)}
	square := [2]int{int(math.Mod(x, 20) / 2), int(math.Mod(y, 10))}
	return string([]byte{
		byte('A' + field[0]),
		byte('A' + field[1]),
		byte('0' + square[0]),
		byte('0' + square[1]),
	}), true
}

// GridFromText parses decimal-degree strings as stored on prefix records and
// returns their grid square. Empty or malformed coordinates yield false.
func GridFromText(lat, lon string) (string, bool) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return "", false
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return "", false
	}
	return Grid4FromLatLon(la, lo)
}
