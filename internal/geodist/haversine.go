// Package geodist provides great-circle distance math and brute-force
// nearest-neighbor lookups over small, fixed reference sets.
package geodist

import "math"

// earthRadiusKM is the mean Earth radius used by the haversine formula.
const earthRadiusKM = 6371.0

// ReferencePoint is a named point of interest (school, MRT station).
// Reference sets are loaded once per run and never mutated.
type ReferencePoint struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Haversine returns the great-circle distance in kilometers between two
// latitude/longitude pairs given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dlat := (lat2 - lat1) * math.Pi / 180
	dlon := (lon2 - lon1) * math.Pi / 180

	sinLat := math.Sin(dlat / 2)
	sinLon := math.Sin(dlon / 2)
	a := sinLat*sinLat + math.Cos(rlat1)*math.Cos(rlat2)*sinLon*sinLon
	return earthRadiusKM * 2 * math.Asin(math.Sqrt(a))
}

// Index answers nearest-neighbor queries against a fixed reference set.
// Lookups are a linear scan — fine at the observed scale (low thousands
// of points); a spatial index would only pay off well beyond that.
type Index struct {
	points []ReferencePoint
}

// NewIndex builds an Index over the given reference points. The slice is
// retained, not copied; callers must not mutate it afterwards.
func NewIndex(points []ReferencePoint) *Index {
	return &Index{points: points}
}

// Len returns the number of reference points in the index.
func (ix *Index) Len() int { return len(ix.points) }

// Nearest returns the reference point closest to (lat, lon) and its
// distance in kilometers. Ties break to the earliest point in load
// order. ok is false only for an empty reference set.
func (ix *Index) Nearest(lat, lon float64) (pt ReferencePoint, km float64, ok bool) {
	if len(ix.points) == 0 {
		return ReferencePoint{}, 0, false
	}

	bestIdx := 0
	bestKM := Haversine(lat, lon, ix.points[0].Latitude, ix.points[0].Longitude)
	for i := 1; i < len(ix.points); i++ {
		d := Haversine(lat, lon, ix.points[i].Latitude, ix.points[i].Longitude)
		if d < bestKM {
			bestKM = d
			bestIdx = i
		}
	}
	return ix.points[bestIdx], bestKM, true
}
