// Package survey implements the acoustic anchor survey solver: travel time
// to range conversion, the range residual model, Gauss-Newton position
// fitting and the fallback (drop deviation) calculation.
package survey

import (
	"fmt"
	"math"
	"time"
)

// MinStations is the smallest station count that can fix a 2D position
const MinStations = 3

// StationRecord is a single ranging observation taken from the ship
type StationRecord struct {
	Latitude   float64   `json:"latitude"`       // Ship latitude in decimal degrees
	Longitude  float64   `json:"longitude"`      // Ship longitude in decimal degrees
	TravelTime float64   `json:"travel_time_s"`  // One-way acoustic travel time in seconds
	Time       time.Time `json:"time,omitzero"` // When the ping was logged (informational)
}

// SurveyConfig holds the scalar parameters for one solve
type SurveyConfig struct {
	DropLatitude     float64 `json:"drop_latitude"`
	DropLongitude    float64 `json:"drop_longitude"`
	TransducerDepthM float64 `json:"transducer_depth_m"`       // Ship transducer depth, positive down
	SoundSpeedMPS    float64 `json:"sound_speed_mps"`          // Effective sound speed for the survey
	AnchorDepthM     float64 `json:"anchor_depth_m,omitempty"` // Water depth at the drop, 0 if unknown
}

// Validate checks the survey scalars and the drop position
func (c SurveyConfig) Validate() error {
	if err := validatePosition(c.DropLatitude, c.DropLongitude); err != nil {
		return fmt.Errorf("drop position: %w", err)
	}
	if !(c.SoundSpeedMPS > 0) || math.IsInf(c.SoundSpeedMPS, 0) {
		return fmt.Errorf("%w: sound speed must be positive, got %v", ErrInvalidInput, c.SoundSpeedMPS)
	}
	if !(c.TransducerDepthM >= 0) || math.IsInf(c.TransducerDepthM, 0) {
		return fmt.Errorf("%w: transducer depth must be >= 0, got %v", ErrInvalidInput, c.TransducerDepthM)
	}
	if !(c.AnchorDepthM >= 0) || math.IsInf(c.AnchorDepthM, 0) {
		return fmt.Errorf("%w: anchor depth must be >= 0, got %v", ErrInvalidInput, c.AnchorDepthM)
	}
	return nil
}

// VerticalOffset returns the vertical separation removed from each slant
// range. Without a known anchor depth this is the transducer depth.
func (c SurveyConfig) VerticalOffset() float64 {
	if c.AnchorDepthM > 0 {
		return math.Abs(c.AnchorDepthM - c.TransducerDepthM)
	}
	return c.TransducerDepthM
}

// SlantRange is the range derived from one station's travel time
type SlantRange struct {
	Station     StationRecord `json:"station"`
	SlantM      float64       `json:"slant_m"`
	HorizontalM float64       `json:"horizontal_m"`
}

// Status is the terminal state of a solve
type Status int

const (
	Converged Status = iota
	MaxIterationsReached
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max iterations reached"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText lets Status appear by name in JSON exports
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Iteration records the solver state after one Gauss-Newton pass
type Iteration struct {
	Iteration int     `json:"iteration"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RMSErrorM float64 `json:"rms_error_m"`
	StepM     float64 `json:"step_m"`
}

// AnchorEstimate is the result of a solve. A new solve always produces a
// new estimate.
type AnchorEstimate struct {
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	RMSErrorM  float64      `json:"rms_error_m"`
	Iterations int          `json:"iterations"`
	Converged  bool         `json:"converged"`
	Status     Status       `json:"status"`
	Ranges     []SlantRange `json:"ranges"`
	Residuals  []float64    `json:"residuals_m"`
	Trace      []Iteration  `json:"trace"`
}

// FallbackResult is the deviation of the solved anchor from the planned drop
type FallbackResult struct {
	DistanceM  float64 `json:"distance_m"`
	BearingDeg float64 `json:"bearing_deg"` // Initial bearing from drop to anchor
}

func validatePosition(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidInput, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidInput, lon)
	}
	return nil
}
