package gps

import (
	"context"
	"fmt"
	"time"
)

// ManualReceiver reports a fixed position, for surveys logged from a
// moored platform or replayed after the fact
type ManualReceiver struct {
	position Position
}

// NewManual creates a receiver fixed at the given position
func NewManual(latitude, longitude, altitude float64) (*ManualReceiver, error) {
	if latitude < -90 || latitude > 90 {
		return nil, fmt.Errorf("invalid latitude: %.8f (must be between -90 and 90 degrees)", latitude)
	}
	if longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("invalid longitude: %.8f (must be between -180 and 180 degrees)", longitude)
	}
	return &ManualReceiver{position: Position{
		Latitude:   latitude,
		Longitude:  longitude,
		Altitude:   altitude,
		FixQuality: 7,
	}}, nil
}

func (m *ManualReceiver) Start() error { return nil }

func (m *ManualReceiver) WaitForFix(ctx context.Context, _ time.Duration) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return m.CurrentPosition()
}

// CurrentPosition returns the fixed position stamped with the current time
func (m *ManualReceiver) CurrentPosition() (Position, error) {
	pos := m.position
	pos.Timestamp = time.Now().UTC()
	return pos, nil
}

func (m *ManualReceiver) IsFixValid() bool { return true }

func (m *ManualReceiver) FixQualityString() string { return fixQualityString(m.position.FixQuality) }

func (m *ManualReceiver) Close() error { return nil }
