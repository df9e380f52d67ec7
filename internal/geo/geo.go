// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"shopd/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Distance is DistanceKm over two points.
func Distance(a, b types.Point) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// TravelTimeMinutes estimates minutes to cover distanceKm at avgSpeedKmh,
// rounded to the nearest minute. A non-positive speed yields math.MaxInt so
// callers filtering by a travel-time ceiling exclude the candidate.
func TravelTimeMinutes(distanceKm, avgSpeedKmh float64) int {
	if avgSpeedKmh <= 0 {
		return math.MaxInt
	}
	return int(math.Round(distanceKm / avgSpeedKmh * 60))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. The sort
// is stable.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
