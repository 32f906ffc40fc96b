// Package collector logs survey stations: each acoustic travel time read
// from the deck box operator is stamped with the current ship position and
// appended to the survey's station file.
package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"anchor-survey/internal/config"
	"anchor-survey/internal/gps"
	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
)

// Collector drives one survey logging session
type Collector struct {
	config   *config.Config
	gps      gps.Receiver
	writer   *stationfile.Writer
	logger   *slog.Logger
	out      io.Writer
	surveyID string

	mu       sync.Mutex
	stations []survey.StationRecord
}

// Reading is one parsed operator input line
type Reading struct {
	TravelTime  float64 // as entered, round trip when the survey is configured so
	Latitude    float64
	Longitude   float64
	HasPosition bool // position was entered instead of taken from GPS
}

func NewCollector(cfg *config.Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		config: cfg,
		logger: logger.With(slog.String("component", "collector")),
		out:    os.Stdout,
	}
}

// SetReceiver overrides the receiver Initialize would create from config
func (c *Collector) SetReceiver(r gps.Receiver) {
	c.gps = r
}

// SetOutput redirects console messages
func (c *Collector) SetOutput(w io.Writer) {
	c.out = w
}

// Initialize starts the GPS receiver and opens the station file
func (c *Collector) Initialize() error {
	if c.gps == nil {
		r, err := gps.New(c.config.GPS, c.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize %s GPS: %w", c.config.GPS.Mode, err)
		}
		c.gps = r
	}
	if err := c.gps.Start(); err != nil {
		return fmt.Errorf("failed to start %s GPS: %w", c.config.GPS.Mode, err)
	}

	if err := os.MkdirAll(c.config.Collection.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	c.surveyID = c.config.Collection.SurveyID
	if c.surveyID == "" {
		c.surveyID = fmt.Sprintf("%s_%d", c.config.Collection.FilePrefix, time.Now().Unix())
	}
	filename := filepath.Join(c.config.Collection.OutputDir, c.surveyID+".dat")

	w, err := stationfile.Create(filename, c.config.StationFormat(), c.surveyID)
	if err != nil {
		return err
	}
	c.writer = w

	c.logger.Info("survey logging initialized",
		slog.String("survey_id", c.surveyID),
		slog.String("file", filename),
		slog.String("gps_mode", c.config.GPS.Mode))
	return nil
}

// Filename returns the station file being written
func (c *Collector) Filename() string {
	if c.writer == nil {
		return ""
	}
	return c.writer.Name()
}

// WaitForGPSFix blocks until the receiver reports a fix
func (c *Collector) WaitForGPSFix(ctx context.Context) error {
	fmt.Fprintf(c.out, "Waiting for GPS fix via %s (timeout: %v)...\n", c.config.GPS.Mode, c.config.GPS.Timeout)

	pos, err := c.gps.WaitForFix(ctx, c.config.GPS.Timeout)
	if err != nil {
		return fmt.Errorf("GPS fix failed: %w", err)
	}

	fmt.Fprintf(c.out, "GPS fix acquired: %.6f, %.6f (quality: %s, satellites: %d)\n",
		pos.Latitude, pos.Longitude, c.gps.FixQualityString(), pos.Satellites)
	return nil
}

// ParseReading parses "<travel_time>" or "<lat> <lon> <travel_time>"
func ParseReading(line string) (Reading, error) {
	fields := strings.Fields(line)
	var r Reading
	switch len(fields) {
	case 1:
	case 3:
		lat, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: latitude %q", survey.ErrInvalidInput, fields[0])
		}
		lon, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: longitude %q", survey.ErrInvalidInput, fields[1])
		}
		if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return Reading{}, fmt.Errorf("%w: position %.6f, %.6f out of range", survey.ErrInvalidInput, lat, lon)
		}
		r.Latitude, r.Longitude, r.HasPosition = lat, lon, true
	default:
		return Reading{}, fmt.Errorf("%w: expected <travel_time> or <lat> <lon> <travel_time>", survey.ErrInvalidInput)
	}

	tt, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil || !(tt > 0) || math.IsInf(tt, 0) {
		return Reading{}, fmt.Errorf("%w: travel time %q must be a positive number of seconds", survey.ErrInvalidInput, fields[len(fields)-1])
	}
	r.TravelTime = tt
	return r, nil
}

// LogStation stamps a reading with the current position and appends it
// to the station file
func (c *Collector) LogStation(r Reading) (survey.StationRecord, error) {
	st := survey.StationRecord{
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		TravelTime: r.TravelTime,
		Time:       time.Now().UTC(),
	}
	if !r.HasPosition {
		pos, err := c.gps.CurrentPosition()
		if err != nil {
			return survey.StationRecord{}, fmt.Errorf("failed to get GPS position: %w", err)
		}
		st.Latitude, st.Longitude = pos.Latitude, pos.Longitude
		if !pos.Timestamp.IsZero() {
			st.Time = pos.Timestamp.UTC()
		}
	}
	if c.config.Survey.RoundTrip {
		st.TravelTime /= 2
	}

	if err := c.writer.Append(st); err != nil {
		return survey.StationRecord{}, err
	}

	c.mu.Lock()
	c.stations = append(c.stations, st)
	n := len(c.stations)
	c.mu.Unlock()

	c.logger.Info("station logged",
		slog.Int("station", n),
		slog.Float64("latitude", st.Latitude),
		slog.Float64("longitude", st.Longitude),
		slog.Float64("travel_time_s", st.TravelTime))
	return st, nil
}

// Stations returns a copy of the stations logged so far
func (c *Collector) Stations() []survey.StationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]survey.StationRecord(nil), c.stations...)
}

// Provisional solves the stations logged so far
func (c *Collector) Provisional() (survey.AnchorEstimate, survey.FallbackResult, error) {
	opts, err := c.config.SolverOptions(c.logger)
	if err != nil {
		return survey.AnchorEstimate{}, survey.FallbackResult{}, err
	}
	params := c.config.SurveyParams()
	est, err := survey.CalculateAnchorPosition(c.Stations(), params, opts...)
	if err != nil {
		return survey.AnchorEstimate{}, survey.FallbackResult{}, err
	}
	fb, err := survey.FallbackDistance(params.DropLatitude, params.DropLongitude, est)
	if err != nil {
		return survey.AnchorEstimate{}, survey.FallbackResult{}, err
	}
	return est, fb, nil
}

// Run reads readings line by line from in until it is exhausted or ctx is
// cancelled, logging a station for each. Bad lines are reported and
// skipped. It returns the number of stations logged.
func (c *Collector) Run(ctx context.Context, in io.Reader) (int, error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintf(c.out, "Logging stations to %s\n", c.Filename())
	fmt.Fprintf(c.out, "Enter <travel_time> or <lat> <lon> <travel_time> per ping, Ctrl+D to finish\n")

	logged := 0
	for {
		select {
		case <-ctx.Done():
			return logged, fmt.Errorf("survey logging cancelled: %w", ctx.Err())
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return logged, fmt.Errorf("failed to read readings: %w", err)
					}
				default:
				}
				return logged, nil
			}

			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			reading, err := ParseReading(line)
			if err != nil {
				fmt.Fprintf(c.out, "Skipped: %v\n", err)
				c.logger.Warn("invalid reading", slog.String("line", line), slog.Any("error", err))
				continue
			}
			st, err := c.LogStation(reading)
			if err != nil {
				if errors.Is(err, gps.ErrNoFix) {
					fmt.Fprintf(c.out, "Skipped: %v\n", err)
					continue
				}
				return logged, err
			}
			logged++
			fmt.Fprintf(c.out, "Station %d: %.6f, %.6f  %.4f s\n", logged, st.Latitude, st.Longitude, st.TravelTime)
			c.reportProvisional()
		}
	}
}

func (c *Collector) reportProvisional() {
	if len(c.Stations()) < survey.MinStations {
		return
	}
	est, fb, err := c.Provisional()
	if err != nil {
		fmt.Fprintf(c.out, "  Provisional anchor: unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(c.out, "  Provisional anchor: %.6f, %.6f  RMS %.2f m  fallback %.1f m @ %.0f°\n",
		est.Latitude, est.Longitude, est.RMSErrorM, fb.DistanceM, fb.BearingDeg)
}

func (c *Collector) Close() error {
	var errs []error

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("station file close error: %w", err))
		}
	}
	if c.gps != nil {
		if err := c.gps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("GPS close error: %w", err))
		}
	}
	return errors.Join(errs...)
}
