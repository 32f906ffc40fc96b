// Package config provides configuration structures and defaults for the anchor survey tools
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
)

// Config represents the complete application configuration
type Config struct {
	Survey     SurveyConfig     `mapstructure:"survey" yaml:"survey"`         // Drop and acoustic parameters
	Solver     SolverConfig     `mapstructure:"solver" yaml:"solver"`         // Gauss-Newton settings
	GPS        GPSConfig        `mapstructure:"gps" yaml:"gps"`               // Ship GPS receiver settings
	Collection CollectionConfig `mapstructure:"collection" yaml:"collection"` // Station logging settings
	Processing ProcessingConfig `mapstructure:"processing" yaml:"processing"` // Solve/export settings
	Archive    ArchiveConfig    `mapstructure:"archive" yaml:"archive"`       // Result archive settings
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`       // Logging configuration
}

// SurveyConfig contains the planned drop and acoustic parameters
type SurveyConfig struct {
	DropLatitude        float64 `mapstructure:"drop_latitude" yaml:"drop_latitude"`               // Planned drop latitude in decimal degrees
	DropLongitude       float64 `mapstructure:"drop_longitude" yaml:"drop_longitude"`             // Planned drop longitude in decimal degrees
	TransducerDepth     float64 `mapstructure:"transducer_depth" yaml:"transducer_depth"`         // Ship transducer depth in meters (positive down)
	AnchorDepth         float64 `mapstructure:"anchor_depth" yaml:"anchor_depth"`                 // Water depth at the drop in meters, 0 if unknown
	SoundSpeed          float64 `mapstructure:"sound_speed" yaml:"sound_speed"`                   // Effective sound speed in m/s
	RoundTrip           bool    `mapstructure:"round_trip" yaml:"round_trip"`                     // Station travel times are round trip
	LatitudeHemisphere  string  `mapstructure:"latitude_hemisphere" yaml:"latitude_hemisphere"`   // N or S for unsigned station latitudes
	LongitudeHemisphere string  `mapstructure:"longitude_hemisphere" yaml:"longitude_hemisphere"` // E or W for unsigned station longitudes
}

// SolverConfig contains the iteration driver parameters
type SolverConfig struct {
	MaxIterations int     `mapstructure:"max_iterations" yaml:"max_iterations"` // Gauss-Newton iteration limit
	Tolerance     float64 `mapstructure:"tolerance" yaml:"tolerance"`           // Convergence step length in meters
	RMSRelTol     float64 `mapstructure:"rms_rel_tol" yaml:"rms_rel_tol"`       // Relative RMS improvement threshold
	Jacobian      string  `mapstructure:"jacobian" yaml:"jacobian"`             // "analytic" or "numeric"
}

// GPSConfig contains GPS receiver configuration parameters
type GPSConfig struct {
	Mode            string        `mapstructure:"mode" yaml:"mode"`                         // GPS mode: "nmea", "gpsd", or "manual"
	Port            string        `mapstructure:"port" yaml:"port"`                         // Serial port device path (for NMEA mode)
	BaudRate        int           `mapstructure:"baud_rate" yaml:"baud_rate"`               // Serial communication baud rate (for NMEA mode)
	GPSDHost        string        `mapstructure:"gpsd_host" yaml:"gpsd_host"`               // GPSD host address (for gpsd mode)
	GPSDPort        string        `mapstructure:"gpsd_port" yaml:"gpsd_port"`               // GPSD port (for gpsd mode)
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`                   // Timeout for GPS fix acquisition
	ManualLatitude  float64       `mapstructure:"manual_latitude" yaml:"manual_latitude"`   // Manual latitude in decimal degrees
	ManualLongitude float64       `mapstructure:"manual_longitude" yaml:"manual_longitude"` // Manual longitude in decimal degrees
	ManualAltitude  float64       `mapstructure:"manual_altitude" yaml:"manual_altitude"`   // Manual altitude in meters
}

// CollectionConfig contains station logging configuration parameters
type CollectionConfig struct {
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`   // Output directory for station files
	FilePrefix string `mapstructure:"file_prefix" yaml:"file_prefix"` // Prefix for station filenames
	SurveyID   string `mapstructure:"survey_id" yaml:"survey_id"`     // Survey identifier for the filename
}

// ProcessingConfig contains solve and export parameters
type ProcessingConfig struct {
	Workers      int    `mapstructure:"workers" yaml:"workers"`             // Concurrent survey solves
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"` // geojson, kml, csv or json
	OutputDir    string `mapstructure:"output_dir" yaml:"output_dir"`       // Export directory
}

// ArchiveConfig contains the optional PostgreSQL archive settings
type ArchiveConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"` // PostgreSQL connection string, empty disables archiving
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`               // Log level (debug, info, warn, error)
	File       string `mapstructure:"file" yaml:"file"`                 // Log file path, empty for stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`   // Rotate after this many megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`   // Rotated files to keep
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `mapstructure:"compress" yaml:"compress"`         // Gzip rotated files
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Survey: SurveyConfig{
			DropLatitude:        0.0,    // Must be configured
			DropLongitude:       0.0,    // Must be configured
			TransducerDepth:     5.0,    // Typical hull-mounted transducer
			AnchorDepth:         0.0,    // Unknown water depth
			SoundSpeed:          1500.0, // Nominal sea water sound speed
			RoundTrip:           true,   // Deck boxes report two-way travel time
			LatitudeHemisphere:  "N",
			LongitudeHemisphere: "W",
		},
		Solver: SolverConfig{
			MaxIterations: 50,         // Gauss-Newton iteration limit
			Tolerance:     0.1,        // 10 cm step convergence
			RMSRelTol:     1e-6,       // Relative RMS improvement threshold
			Jacobian:      "analytic", // Closed form haversine partials
		},
		GPS: GPSConfig{
			Mode:            "nmea",           // Default to NMEA serial mode
			Port:            "/dev/ttyUSB0",   // Common USB GPS device path
			BaudRate:        4800,             // NMEA 0183 standard baud rate
			GPSDHost:        "localhost",      // Default gpsd host
			GPSDPort:        "2947",           // Default gpsd port
			Timeout:         30 * time.Second, // 30 second GPS fix timeout
			ManualLatitude:  0.0,
			ManualLongitude: 0.0,
			ManualAltitude:  0.0,
		},
		Collection: CollectionConfig{
			OutputDir:  "./data",   // Current directory data folder
			FilePrefix: "stations", // File prefix for station files
			SurveyID:   "",         // No default survey ID
		},
		Processing: ProcessingConfig{
			Workers:      4,
			OutputFormat: "geojson",
			OutputDir:    "./survey-results",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  32,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// Validate checks the configuration for values the tools cannot work with
func (c *Config) Validate() error {
	if c.Survey.DropLatitude < -90 || c.Survey.DropLatitude > 90 {
		return fmt.Errorf("invalid drop latitude: %.8f (must be between -90 and 90 degrees)", c.Survey.DropLatitude)
	}
	if c.Survey.DropLongitude < -180 || c.Survey.DropLongitude > 180 {
		return fmt.Errorf("invalid drop longitude: %.8f (must be between -180 and 180 degrees)", c.Survey.DropLongitude)
	}
	if c.Survey.SoundSpeed <= 0 {
		return fmt.Errorf("invalid sound speed: %.2f m/s (must be positive)", c.Survey.SoundSpeed)
	}
	if c.Survey.TransducerDepth < 0 {
		return fmt.Errorf("invalid transducer depth: %.2f m (must be >= 0)", c.Survey.TransducerDepth)
	}
	if c.Survey.AnchorDepth < 0 {
		return fmt.Errorf("invalid anchor depth: %.2f m (must be >= 0)", c.Survey.AnchorDepth)
	}
	switch strings.ToUpper(c.Survey.LatitudeHemisphere) {
	case "N", "S":
	default:
		return fmt.Errorf("invalid latitude hemisphere: %q (must be 'N' or 'S')", c.Survey.LatitudeHemisphere)
	}
	switch strings.ToUpper(c.Survey.LongitudeHemisphere) {
	case "E", "W":
	default:
		return fmt.Errorf("invalid longitude hemisphere: %q (must be 'E' or 'W')", c.Survey.LongitudeHemisphere)
	}

	if c.Solver.MaxIterations < 1 {
		return fmt.Errorf("invalid max iterations: %d (must be >= 1)", c.Solver.MaxIterations)
	}
	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("invalid tolerance: %g m (must be positive)", c.Solver.Tolerance)
	}
	if c.Solver.RMSRelTol < 0 {
		return fmt.Errorf("invalid rms relative tolerance: %g (must be >= 0)", c.Solver.RMSRelTol)
	}
	switch c.Solver.Jacobian {
	case "analytic", "numeric":
	default:
		return fmt.Errorf("invalid jacobian: %s (must be 'analytic' or 'numeric')", c.Solver.Jacobian)
	}

	if c.Processing.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d (must be >= 1)", c.Processing.Workers)
	}
	switch c.Processing.OutputFormat {
	case "geojson", "kml", "csv", "json":
	default:
		return fmt.Errorf("unsupported output format: %s (must be geojson, kml, csv or json)", c.Processing.OutputFormat)
	}
	return nil
}

// ValidateGPS checks the GPS section for the selected mode
func (c *Config) ValidateGPS() error {
	switch c.GPS.Mode {
	case "manual":
		if c.GPS.ManualLatitude < -90 || c.GPS.ManualLatitude > 90 {
			return fmt.Errorf("invalid latitude: %.8f (must be between -90 and 90 degrees)", c.GPS.ManualLatitude)
		}
		if c.GPS.ManualLongitude < -180 || c.GPS.ManualLongitude > 180 {
			return fmt.Errorf("invalid longitude: %.8f (must be between -180 and 180 degrees)", c.GPS.ManualLongitude)
		}
	case "nmea":
		if c.GPS.Port == "" {
			return fmt.Errorf("GPS port not specified for NMEA mode")
		}
	case "gpsd":
		if c.GPS.GPSDHost == "" {
			return fmt.Errorf("GPSD host not specified for gpsd mode")
		}
		if c.GPS.GPSDPort == "" {
			return fmt.Errorf("GPSD port not specified for gpsd mode")
		}
	default:
		return fmt.Errorf("invalid GPS mode: %s (must be 'nmea', 'gpsd', or 'manual')", c.GPS.Mode)
	}
	return nil
}

// DropUnset reports whether the drop position was left at 0°, 0°
func (c *Config) DropUnset() bool {
	return c.Survey.DropLatitude == 0 && c.Survey.DropLongitude == 0
}

// SurveyParams returns the solver's view of the survey section
func (c *Config) SurveyParams() survey.SurveyConfig {
	return survey.SurveyConfig{
		DropLatitude:     c.Survey.DropLatitude,
		DropLongitude:    c.Survey.DropLongitude,
		TransducerDepthM: c.Survey.TransducerDepth,
		SoundSpeedMPS:    c.Survey.SoundSpeed,
		AnchorDepthM:     c.Survey.AnchorDepth,
	}
}

// StationFormat returns how station files are read and written
func (c *Config) StationFormat() stationfile.Format {
	return stationfile.Format{
		LatitudeHemisphere:  strings.ToUpper(c.Survey.LatitudeHemisphere),
		LongitudeHemisphere: strings.ToUpper(c.Survey.LongitudeHemisphere),
		RoundTrip:           c.Survey.RoundTrip,
	}
}

// SolverOptions returns the solver options for the solver section
func (c *Config) SolverOptions(logger *slog.Logger) ([]survey.Option, error) {
	jac, ok := survey.JacobianByName(c.Solver.Jacobian)
	if !ok {
		return nil, fmt.Errorf("invalid jacobian: %s (must be 'analytic' or 'numeric')", c.Solver.Jacobian)
	}
	opts := []survey.Option{
		survey.WithMaxIterations(c.Solver.MaxIterations),
		survey.WithTolerance(c.Solver.Tolerance),
		survey.WithRMSRelTol(c.Solver.RMSRelTol),
		survey.WithJacobian(jac),
	}
	if logger != nil {
		opts = append(opts, survey.WithLogger(logger))
	}
	return opts, nil
}
