package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/mapdraw/model"
)

// EarthRadiusKm is the mean Earth radius used for all simple
// geometry calculations (kilometres).
const EarthRadiusKm = 6371.0

// SectorArcSegments is the number of arc segments in a sector ring; the
// arc itself has SectorArcSegments+1 points.
const SectorArcSegments = 32

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in
// kilometres using the haversine formula. It is symmetric.
func Distance(a, b model.Coordinate) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	dPhi := toRadians(b.Lat - a.Lat)
	dLambda := toRadians(b.Lng - a.Lng)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Azimuth returns the initial bearing from a to b in degrees, normalised
// to [0, 360). Azimuth(b, a) is the reciprocal bearing, not the negation.
func Azimuth(a, b model.Coordinate) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	dLambda := toRadians(b.Lng - a.Lng)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	theta := toDegrees(math.Atan2(y, x))
	if theta < 0 {
		theta += 360
	}
	if theta >= 360 {
		theta -= 360
	}
	return theta
}

// PolygonArea returns the area of a simple ring in square kilometres.
//
// Each segment is projected onto a local plane scaled by the cosine of
// the segment's mean latitude, and the shoelace terms are summed. The
// result is valid only for simple (non self-intersecting) rings; no check
// is made. An unclosed ring is treated as closed.
func PolygonArea(ring model.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	closed := ring.Closed()
	segments := n
	if closed {
		segments = n - 1
	}

	sum := 0.0
	for i := 0; i < segments; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		k := math.Cos(toRadians((a.Lat + b.Lat) / 2))
		xa := toRadians(a.Lng) * EarthRadiusKm * k
		ya := toRadians(a.Lat) * EarthRadiusKm
		xb := toRadians(b.Lng) * EarthRadiusKm * k
		yb := toRadians(b.Lat) * EarthRadiusKm
		sum += xa*yb - xb*ya
	}
	return math.Abs(sum) / 2
}

// PlanarDistance is the Euclidean distance between a and b measured in
// coordinate degrees. Sector radii and close-point tolerances use it, not
// the geodesic Distance.
func PlanarDistance(a, b model.Coordinate) float64 {
	return math.Hypot(a.Lng-b.Lng, a.Lat-b.Lat)
}

// PlanarAngle is atan2 of p relative to center in coordinate space.
func PlanarAngle(center, p model.Coordinate) float64 {
	return math.Atan2(p.Lat-center.Lat, p.Lng-center.Lng)
}

// SweepEnd normalises end by adding full turns until it exceeds start.
func SweepEnd(start, end float64) float64 {
	for end <= start {
		end += 2 * math.Pi
	}
	return end
}

// SectorPolygon builds a closed sector ring in coordinate-degree space:
// the centre, SectorArcSegments+1 arc points from start to the normalised
// end, and the centre again.
//
// The sweep always increases from start through end, so a click just
// clockwise of the start angle yields an almost full disc rather than the
// minimal-angle sector.
func SectorPolygon(center model.Coordinate, radius, startAngle, endAngle float64) model.Ring {
	end := SweepEnd(startAngle, endAngle)
	step := (end - startAngle) / SectorArcSegments

	ring := make(model.Ring, 0, SectorArcSegments+3)
	ring = append(ring, center)
	for i := 0; i <= SectorArcSegments; i++ {
		theta := startAngle + step*float64(i)
		ring = append(ring, model.Coordinate{
			Lng: center.Lng + radius*math.Cos(theta),
			Lat: center.Lat + radius*math.Sin(theta),
		})
	}
	return append(ring, center)
}

// CloseTolerance is the zoom-adaptive distance, in coordinate degrees,
// within which a click snaps to a polygon's first vertex.
func CloseTolerance(zoom float64) float64 {
	factor := math.Max(0.1, 1/math.Pow(2, zoom-5))
	return 0.05 * factor
}

// NearFirstVertex reports whether c is within CloseTolerance(zoom) of
// vertices[0]. It is only meaningful once two vertices exist.
func NearFirstVertex(vertices []model.Coordinate, c model.Coordinate, zoom float64) bool {
	if len(vertices) < 2 {
		return false
	}
	return PlanarDistance(c, vertices[0]) < CloseTolerance(zoom)
}

func FormatDistance(km float64) string { return fmt.Sprintf("%.2f km", km) }
func FormatArea(km2 float64) string    { return fmt.Sprintf("%.2f km²", km2) }
func FormatAngle(deg float64) string   { return fmt.Sprintf("%.1f°", deg) }
