// Package geo filters reports by great-circle distance from a point.
package geo

import (
	"sort"

	"corruption-report-service/internal/model"

	"github.com/golang/geo/s2"
)

const (
	// Mean Earth radius.
	EarthRadiusKm   = 6371.0
	DefaultRadiusKm = 50.0
)

// DistanceKm is the haversine distance between two coordinates in degrees.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lng1)
	b := s2.LatLngFromDegrees(lat2, lng2)
	return a.Distance(b).Radians() * EarthRadiusKm
}

// FilterNearby returns the approved reports strictly closer than radiusKm
// to the origin, nearest first. Reports without a location never match.
func FilterNearby(reports []model.Report, lat, lng, radiusKm float64) []model.NearbyReport {
	out := make([]model.NearbyReport, 0)
	for _, r := range reports {
		if !r.IsPublic() || r.Location == nil {
			continue
		}
		d := DistanceKm(lat, lng, r.Location.Lat, r.Location.Lng)
		if d < radiusKm {
			out = append(out, model.NearbyReport{Report: r, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm == out[j].DistanceKm {
			return out[i].ID < out[j].ID
		}
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

// ValidCoordinates reports whether lat/lng are inside the WGS84 ranges.
func ValidCoordinates(lat, lng float64) bool {
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}
