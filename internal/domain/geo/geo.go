// Package geo provides great-circle distance and coarse cell bucketing for
// business-listing coordinates.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius of Earth used for Haversine distance.
const EarthRadiusMeters = 6_371_000.0

// CellSizeDeg is the edge length of a coarse grid cell in degrees.
// Roughly 2.2 km north-south, good enough to bucket co-located listings.
const CellSizeDeg = 0.02

// Haversine returns the great-circle distance in meters between two points
// specified by latitude and longitude in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Cell buckets a coordinate into a coarse grid cell identifier.
// Listings of the same venue land in the same or an adjacent cell.
func Cell(lat, lon float64) string {
	return fmt.Sprintf("%d:%d", int(math.Floor(lat/CellSizeDeg)), int(math.Floor(lon/CellSizeDeg)))
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
func ValidateCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
