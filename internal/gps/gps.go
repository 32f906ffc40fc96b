// Package gps provides the ship position used to stamp survey stations.
// Positions come from NMEA 0183 sentences (serial port or any stream), a
// gpsd daemon, or a fixed manual position.
package gps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anchor-survey/internal/config"
)

// ErrNoFix is returned when no valid position is available yet
var ErrNoFix = errors.New("no GPS fix available")

// Position is a single ship position fix
type Position struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Timestamp  time.Time
	FixQuality int
	Satellites int
}

// Receiver is the common interface for ship position sources
type Receiver interface {
	Start() error
	WaitForFix(ctx context.Context, timeout time.Duration) (Position, error)
	CurrentPosition() (Position, error)
	IsFixValid() bool
	FixQualityString() string
	Close() error
}

// New creates the receiver selected by cfg.Mode
func New(cfg config.GPSConfig, logger *slog.Logger) (Receiver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch cfg.Mode {
	case "nmea":
		return NewNMEASerial(cfg.Port, cfg.BaudRate, logger)
	case "gpsd":
		return NewGPSDClient(cfg.GPSDHost, cfg.GPSDPort, logger), nil
	case "manual":
		return NewManual(cfg.ManualLatitude, cfg.ManualLongitude, cfg.ManualAltitude)
	default:
		return nil, fmt.Errorf("invalid GPS mode: %s (must be 'nmea', 'gpsd', or 'manual')", cfg.Mode)
	}
}

// waitForFix blocks until a valid fix arrives on fixes, the timeout
// expires or ctx is cancelled
func waitForFix(ctx context.Context, fixes <-chan Position, timeout time.Duration) (Position, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case pos := <-fixes:
			if pos.FixQuality > 0 {
				return pos, nil
			}
		case <-timer.C:
			return Position{}, fmt.Errorf("GPS fix timeout after %v", timeout)
		case <-ctx.Done():
			return Position{}, ctx.Err()
		}
	}
}

// fixQualityString names a GGA fix quality value
func fixQualityString(quality int) string {
	switch quality {
	case 0:
		return "Invalid"
	case 1:
		return "GPS fix (SPS)"
	case 2:
		return "DGPS fix"
	case 3:
		return "PPS fix"
	case 4:
		return "Real Time Kinematic"
	case 5:
		return "Float RTK"
	case 6:
		return "estimated (dead reckoning)"
	case 7:
		return "Manual input mode"
	case 8:
		return "Simulation mode"
	default:
		return "Unknown"
	}
}
