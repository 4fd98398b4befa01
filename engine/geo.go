package engine

import "math"

// earthRadiusKM is the mean Earth radius used by the haversine formula.
const earthRadiusKM = 6371.0

// haversineKM returns the great-circle distance in kilometers between two
// coordinates given as decimal degrees.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// toLatLon extracts a [lat, lon] pair from a two-element numeric array and
// checks coordinate ranges.
func toLatLon(v any) (lat, lon float64, ok bool) {
	pair, ok := toAnySlice(v)
	if !ok || len(pair) != 2 {
		return 0, 0, false
	}
	lat, ok = toFloat64(pair[0])
	if !ok {
		return 0, 0, false
	}
	lon, ok = toFloat64(pair[1])
	if !ok {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}
