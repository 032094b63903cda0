// Package geo contains pure geographic computation helpers shared by matching and live tracking.
package geo

import (
	"math"

	"fixit/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// EtaMinutes converts a distance into minutes at speedKmh plus a fixed buffer.
// A non-positive speed yields only the buffer.
func EtaMinutes(distanceKm, speedKmh, bufferMinutes float64) float64 {
	if speedKmh <= 0 {
		return bufferMinutes
	}
	return distanceKm/speedKmh*60 + bufferMinutes
}

// MpsToKmh converts metres per second, the unit device GPS reports, to km/h.
func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}

// BoundingBox returns the lat/lng box enclosing a circle of radiusKm around center.
// Used as a cheap index-friendly prefilter before exact haversine checks.
func BoundingBox(center types.Point, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	dLat := radiusKm / earthRadiusKm * 180 / math.Pi
	minLat = math.Max(-90, center.Lat-dLat)
	maxLat = math.Min(90, center.Lat+dLat)

	cosLat := math.Cos(degreesToRadians(center.Lat))
	if cosLat < 1e-6 || minLat <= -90 || maxLat >= 90 {
		return minLat, maxLat, -180, 180
	}
	dLng := dLat / cosLat
	if dLng >= 180 {
		return minLat, maxLat, -180, 180
	}
	minLng = center.Lng - dLng
	maxLng = center.Lng + dLng
	if minLng < -180 || maxLng > 180 {
		// Box crosses the antimeridian; fall back to the full longitude range.
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLng, maxLng
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
