package hazard

import "math"

// WGS84 semi-major axis, meters. Spherical web mercator uses it as the
// sphere radius.
const earthRadius = 6378137.0

// ToWebMercator projects WGS84 lon/lat degrees to EPSG:3857 meters.
func ToWebMercator(lon, lat float64) (x, y float64) {
	x = earthRadius * lon * math.Pi / 180
	y = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// FromWebMercator is the inverse of ToWebMercator.
func FromWebMercator(x, y float64) (lon, lat float64) {
	lon = x / earthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}
