package survey

import (
	"math"

	"github.com/soniakeys/unit"
)

// DefaultEpsilon is the finite difference step in degrees
const DefaultEpsilon = 1e-6

// JacobianProvider supplies the partial derivatives of the predicted
// station distance with respect to the candidate position. Each row holds
// d(distance)/d(lat) and d(distance)/d(lon) in meters per degree.
type JacobianProvider interface {
	Jacobian(lat, lon float64, stations []StationRecord) [][2]float64
	Name() string
}

// AnalyticJacobian differentiates the haversine distance in closed form
type AnalyticJacobian struct{}

func (AnalyticJacobian) Name() string { return "analytic" }

// Jacobian implements JacobianProvider
func (AnalyticJacobian) Jacobian(lat, lon float64, stations []StationRecord) [][2]float64 {
	rows := make([][2]float64, len(stations))
	perDeg := unit.AngleFromDeg(1).Rad()

	phi2 := unit.AngleFromDeg(lat).Rad()
	for i, st := range stations {
		a := haversine(st.Latitude, st.Longitude, lat, lon)
		// The derivative is undefined with the candidate on top of the
		// station (a == 0) and at the antipode; those rows stay zero.
		if a <= 0 || a >= 1 {
			continue
		}

		phi1 := unit.AngleFromDeg(st.Latitude).Rad()
		dPhi := phi2 - phi1
		dLambda := unit.AngleFromDeg(lon - st.Longitude).Rad()
		sLambda := math.Sin(dLambda / 2)

		daDPhi := 0.5*math.Sin(dPhi) - math.Cos(phi1)*math.Sin(phi2)*sLambda*sLambda
		daDLambda := 0.5 * math.Cos(phi1) * math.Cos(phi2) * math.Sin(dLambda)
		dDDa := EarthRadius / math.Sqrt(a*(1-a))

		rows[i] = [2]float64{dDDa * daDPhi * perDeg, dDDa * daDLambda * perDeg}
	}
	return rows
}

// NumericJacobian uses central finite differences of Distance
type NumericJacobian struct {
	Epsilon float64 // Step in degrees, DefaultEpsilon when zero
}

func (NumericJacobian) Name() string { return "numeric" }

// Jacobian implements JacobianProvider
func (n NumericJacobian) Jacobian(lat, lon float64, stations []StationRecord) [][2]float64 {
	eps := n.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	rows := make([][2]float64, len(stations))
	for i, st := range stations {
		dLat := Distance(st.Latitude, st.Longitude, lat+eps, lon) -
			Distance(st.Latitude, st.Longitude, lat-eps, lon)
		dLon := Distance(st.Latitude, st.Longitude, lat, lon+eps) -
			Distance(st.Latitude, st.Longitude, lat, lon-eps)
		rows[i] = [2]float64{dLat / (2 * eps), dLon / (2 * eps)}
	}
	return rows
}

// JacobianByName maps a configuration value to a provider
func JacobianByName(name string) (JacobianProvider, bool) {
	switch name {
	case "", "analytic":
		return AnalyticJacobian{}, true
	case "numeric":
		return NumericJacobian{Epsilon: DefaultEpsilon}, true
	default:
		return nil, false
	}
}
