package survey

import (
	"fmt"
	"math"
)

// HorizontalRange converts a one-way travel time into the horizontal range
// from ship to anchor. Round-trip times must be halved before this call.
//
// When the vertical offset exceeds the slant distance (near-field or noisy
// pings) the range is clamped to zero instead of failing.
func HorizontalRange(travelTimeS, transducerDepthM, soundSpeedMPS float64) (float64, error) {
	slant, err := slantDistance(travelTimeS, soundSpeedMPS)
	if err != nil {
		return 0, err
	}
	if !(transducerDepthM >= 0) || math.IsInf(transducerDepthM, 0) {
		return 0, fmt.Errorf("%w: depth must be >= 0, got %v", ErrInvalidInput, transducerDepthM)
	}
	return horizontalFromSlant(slant, transducerDepthM), nil
}

// SlantRanges converts every station of a survey using the survey's sound
// speed and vertical offset.
func SlantRanges(stations []StationRecord, cfg SurveyConfig) ([]SlantRange, error) {
	depth := cfg.VerticalOffset()
	ranges := make([]SlantRange, len(stations))
	for i, st := range stations {
		if err := validatePosition(st.Latitude, st.Longitude); err != nil {
			return nil, fmt.Errorf("station %d: %w", i+1, err)
		}
		slant, err := slantDistance(st.TravelTime, cfg.SoundSpeedMPS)
		if err != nil {
			return nil, fmt.Errorf("station %d: %w", i+1, err)
		}
		ranges[i] = SlantRange{
			Station:     st,
			SlantM:      slant,
			HorizontalM: horizontalFromSlant(slant, depth),
		}
	}
	return ranges, nil
}

func slantDistance(travelTimeS, soundSpeedMPS float64) (float64, error) {
	if !(travelTimeS > 0) || math.IsInf(travelTimeS, 0) {
		return 0, fmt.Errorf("%w: travel time must be positive, got %v", ErrInvalidInput, travelTimeS)
	}
	if !(soundSpeedMPS > 0) || math.IsInf(soundSpeedMPS, 0) {
		return 0, fmt.Errorf("%w: sound speed must be positive, got %v", ErrInvalidInput, soundSpeedMPS)
	}
	return travelTimeS * soundSpeedMPS, nil
}

func horizontalFromSlant(slant, depth float64) float64 {
	return math.Sqrt(math.Max(slant*slant-depth*depth, 0))
}
