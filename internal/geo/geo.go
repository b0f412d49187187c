// Package geo holds the small amount of spherical geometry the telemetry
// connectors need: great-circle distance and bounding-box arithmetic.
package geo

import "math"

const (
	earthRadiusKM = 6371.0
	kmPerNM       = 1.852
)

// BBox is a geographic bounding box. Valid when MinLat <= MaxLat and
// MinLon <= MaxLon; boxes crossing the antimeridian are not supported.
type BBox struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Center returns the box midpoint.
func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// RadiusNM returns the great-circle distance in nautical miles from the box
// centre to its farthest corner. Upstream aircraft APIs take a centre plus
// radius, so a box query must cover every corner.
func (b BBox) RadiusNM() float64 {
	clat, clon := b.Center()
	corners := [4][2]float64{
		{b.MinLat, b.MinLon},
		{b.MinLat, b.MaxLon},
		{b.MaxLat, b.MinLon},
		{b.MaxLat, b.MaxLon},
	}
	var maxKM float64
	for _, c := range corners {
		if d := HaversineKM(clat, clon, c[0], c[1]); d > maxKM {
			maxKM = d
		}
	}
	return maxKM / kmPerNM
}

// HaversineKM returns the great-circle distance between two points in km.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
