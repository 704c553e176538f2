package feedsim

import "math"

// EarthRadiusKm is the mean Earth radius used for line-of-sight and
// sub-satellite point calculations.
const EarthRadiusKm = 6371.0

// Vec3 is an ECEF-style vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// LngLat projects v onto the sphere and returns its longitude and
// latitude in degrees.
func (v Vec3) LngLat() (lng, lat float64) {
	lng = math.Atan2(v.Y, v.X) * 180 / math.Pi
	lat = math.Atan2(v.Z, math.Hypot(v.X, v.Y)) * 180 / math.Pi
	return lng, lat
}

// SurfacePoint returns the ECEF position of a point on the sphere.
func SurfacePoint(lng, lat float64) Vec3 {
	phi := lat * math.Pi / 180
	lambda := lng * math.Pi / 180
	return Vec3{
		X: EarthRadiusKm * math.Cos(phi) * math.Cos(lambda),
		Y: EarthRadiusKm * math.Cos(phi) * math.Sin(lambda),
		Z: EarthRadiusKm * math.Sin(phi),
	}
}

// hasLineOfSight reports whether the segment p1-p2 clears the Earth
// sphere. All positions are ECEF in kilometres.
func hasLineOfSight(p1, p2 Vec3) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > EarthRadiusKm*EarthRadiusKm
	}

	// Closest point on the segment to the Earth's centre.
	t := -p1.Dot(v) / a
	t = math.Max(0, math.Min(1, t))
	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Dot(closest) > EarthRadiusKm*EarthRadiusKm
}

// ElevationDegrees returns the elevation of target seen from observer.
// 0° is the geometric horizon, 90° overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	r := observer.Norm()
	if vNorm == 0 || r == 0 {
		return 90
	}
	zenith := Vec3{X: observer.X / r, Y: observer.Y / r, Z: observer.Z / r}

	cosGamma := math.Max(-1, math.Min(1, v.Dot(zenith)/vNorm))
	return 90 - math.Acos(cosGamma)*180/math.Pi
}

// Link budget defaults: 20 dBW transmit power, 30 dBi antennas at each
// end, 12 GHz carrier, -120 dBW noise floor.
const (
	txPowerDBw     = 20.0
	antennaGainDBi = 30.0
	carrierGHz     = 12.0
	noiseFloorDBw  = -120.0
)

// EstimateSNRdB is a free-space path loss estimate: monotonic in distance
// and only meant to spread nodes across the quality buckets.
func EstimateSNRdB(distanceKm float64) float64 {
	if distanceKm < 1 {
		distanceKm = 1
	}
	fspl := 92.45 + 20*math.Log10(distanceKm) + 20*math.Log10(carrierGHz)
	pr := txPowerDBw + 2*antennaGainDBi - fspl
	return pr - noiseFloorDBw
}
