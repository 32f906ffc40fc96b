package survey

import "math"

// Residuals returns predicted minus observed horizontal range for every
// station, where the prediction is the surface distance from the station
// to the candidate anchor position.
func Residuals(lat, lon float64, stations []StationRecord, ranges []SlantRange) []float64 {
	r := make([]float64, len(stations))
	for i, st := range stations {
		r[i] = Distance(st.Latitude, st.Longitude, lat, lon) - ranges[i].HorizontalM
	}
	return r
}

// RMS returns the root-mean-square of the residuals, 0 for an empty set
func RMS(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range residuals {
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(residuals)))
}
