package survey

// FallbackDistance returns how far, and in which direction, the solved
// anchor lies from the planned drop position.
func FallbackDistance(dropLat, dropLon float64, estimate AnchorEstimate) (FallbackResult, error) {
	return Fallback(dropLat, dropLon, estimate.Latitude, estimate.Longitude)
}

// Fallback measures between two positions with the same metric used by the
// residual model. The distance is symmetric in its arguments.
func Fallback(fromLat, fromLon, toLat, toLon float64) (FallbackResult, error) {
	if err := validatePosition(fromLat, fromLon); err != nil {
		return FallbackResult{}, err
	}
	if err := validatePosition(toLat, toLon); err != nil {
		return FallbackResult{}, err
	}
	return FallbackResult{
		DistanceM:  Distance(fromLat, fromLon, toLat, toLon),
		BearingDeg: Bearing(fromLat, fromLon, toLat, toLon),
	}, nil
}
