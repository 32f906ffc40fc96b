package survey

import (
	"math"

	"github.com/soniakeys/unit"
)

// EarthRadius is the mean spherical Earth radius in meters
const EarthRadius = 6371000.0

// Distance returns the haversine surface distance in meters between two
// positions. The residual model, both Jacobian providers, the solver step
// length and the fallback all measure with this one formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return EarthRadius * centralAngle(lat1, lon1, lat2, lon2)
}

// Bearing returns the initial great-circle bearing from the first position
// to the second in degrees [0, 360)
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := unit.AngleFromDeg(lat1).Rad()
	phi2 := unit.AngleFromDeg(lat2).Rad()
	dLambda := unit.AngleFromDeg(lon2 - lon1).Rad()

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	if x == 0 && y == 0 {
		return 0
	}

	deg := unit.Angle(math.Atan2(y, x)).Deg()
	return math.Mod(deg+360, 360)
}

// WrapLongitude normalizes a longitude into [-180, 180)
func WrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// ToLocal projects a position onto an east/north tangent plane in meters
// centered on the reference position (equirectangular approximation).
// Longitude differences are taken the short way across the antimeridian.
func ToLocal(lat, lon, refLat, refLon float64) (x, y float64) {
	dLat := unit.AngleFromDeg(lat - refLat).Rad()
	dLon := unit.AngleFromDeg(WrapLongitude(lon - refLon)).Rad()
	x = EarthRadius * dLon * math.Cos(unit.AngleFromDeg(refLat).Rad())
	y = EarthRadius * dLat
	return x, y
}

// FromLocal is the inverse of ToLocal
func FromLocal(x, y, refLat, refLon float64) (lat, lon float64) {
	dLat := unit.Angle(y / EarthRadius)
	dLon := unit.Angle(x / (EarthRadius * math.Cos(unit.AngleFromDeg(refLat).Rad())))
	return refLat + dLat.Deg(), WrapLongitude(refLon + dLon.Deg())
}

// haversine returns the haversine term a for the pair of positions, the
// quantity whose arcsine gives half the central angle.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := unit.AngleFromDeg(lat1).Rad()
	phi2 := unit.AngleFromDeg(lat2).Rad()
	dPhi := unit.AngleFromDeg(lat2 - lat1).Rad()
	dLambda := unit.AngleFromDeg(lon2 - lon1).Rad()

	sPhi := math.Sin(dPhi / 2)
	sLambda := math.Sin(dLambda / 2)
	a := sPhi*sPhi + math.Cos(phi1)*math.Cos(phi2)*sLambda*sLambda
	return math.Min(math.Max(a, 0), 1)
}

func centralAngle(lat1, lon1, lat2, lon2 float64) float64 {
	return 2 * math.Asin(math.Sqrt(haversine(lat1, lon1, lat2, lon2)))
}
