// Package processor solves logged anchor surveys and exports the results
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
)

// Config holds the configuration for survey processing
type Config struct {
	Survey  survey.SurveyConfig // Drop position and acoustic parameters
	Format  stationfile.Format  // How station files are read
	Options []survey.Option     // Solver options
	Workers int                 // Concurrent solves in a batch
	Verbose bool                // Print per-station detail
	Logger  *slog.Logger
}

// Location represents a geographic coordinate
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StationResult is one station with its derived ranges and final residual
type StationResult struct {
	ID          string    `json:"id"`
	Location    Location  `json:"location"`
	TravelTime  float64   `json:"travel_time_s"` // one-way
	SlantM      float64   `json:"slant_m"`
	HorizontalM float64   `json:"horizontal_m"`
	ResidualM   float64   `json:"residual_m"`
	Time        time.Time `json:"time,omitzero"`
}

// Result holds the complete solution for one survey
type Result struct {
	SurveyID         string                `json:"survey_id"`
	Filename         string                `json:"filename,omitempty"`
	Drop             Location              `json:"drop"`
	Anchor           Location              `json:"anchor"`
	RMSErrorM        float64               `json:"rms_error_m"`
	Iterations       int                   `json:"iterations"`
	Converged        bool                  `json:"converged"`
	Status           survey.Status         `json:"status"`
	Fallback         survey.FallbackResult `json:"fallback"`
	TransducerDepthM float64               `json:"transducer_depth_m"`
	AnchorDepthM     float64               `json:"anchor_depth_m,omitempty"`
	SoundSpeedMPS    float64               `json:"sound_speed_mps"`
	Stations         []StationResult       `json:"stations"`
	Trace            []survey.Iteration    `json:"trace"`
	ProcessingTime   time.Time             `json:"processing_time"`
}

// Survey is one set of stations to solve
type Survey struct {
	ID       string
	Filename string
	Stations []survey.StationRecord
	Config   survey.SurveyConfig
}

// Processor handles survey solving
type Processor struct {
	config *Config
	logger *slog.Logger
	out    io.Writer
}

// NewProcessor creates a new survey processor with the given configuration
func NewProcessor(config *Config) (*Processor, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Survey.Validate(); err != nil {
		return nil, fmt.Errorf("invalid survey configuration: %w", err)
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Processor{
		config: config,
		logger: logger.With(slog.String("component", "processor")),
		out:    os.Stdout,
	}, nil
}

// SetOutput redirects console progress messages
func (p *Processor) SetOutput(w io.Writer) {
	p.out = w
}

// LoadSurvey reads a station file into a survey using the configured drop
// position and acoustic parameters
func (p *Processor) LoadSurvey(filename string) (Survey, error) {
	stations, err := stationfile.Load(filename, p.config.Format)
	if err != nil {
		return Survey{}, err
	}
	return Survey{
		ID:       strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)),
		Filename: filename,
		Stations: stations,
		Config:   p.config.Survey,
	}, nil
}

// Solve fits the anchor position for one survey and computes its fallback
func (p *Processor) Solve(s Survey) (*Result, error) {
	start := time.Now()

	est, err := survey.CalculateAnchorPosition(s.Stations, s.Config, p.config.Options...)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", s.ID, err)
	}
	fb, err := survey.FallbackDistance(s.Config.DropLatitude, s.Config.DropLongitude, est)
	if err != nil {
		return nil, fmt.Errorf("survey %s: fallback: %w", s.ID, err)
	}

	stations := make([]StationResult, len(est.Ranges))
	for i, rng := range est.Ranges {
		stations[i] = StationResult{
			ID:          fmt.Sprintf("S%d", i+1),
			Location:    Location{Latitude: rng.Station.Latitude, Longitude: rng.Station.Longitude},
			TravelTime:  rng.Station.TravelTime,
			SlantM:      rng.SlantM,
			HorizontalM: rng.HorizontalM,
			ResidualM:   est.Residuals[i],
			Time:        rng.Station.Time,
		}
	}

	p.logger.Info("survey solved",
		slog.String("survey_id", s.ID),
		slog.Int("stations", len(s.Stations)),
		slog.Float64("latitude", est.Latitude),
		slog.Float64("longitude", est.Longitude),
		slog.Float64("rms_m", est.RMSErrorM),
		slog.Int("iterations", est.Iterations),
		slog.String("status", est.Status.String()),
		slog.Float64("fallback_m", fb.DistanceM),
		slog.Duration("elapsed", time.Since(start)))

	return &Result{
		SurveyID:         s.ID,
		Filename:         s.Filename,
		Drop:             Location{Latitude: s.Config.DropLatitude, Longitude: s.Config.DropLongitude},
		Anchor:           Location{Latitude: est.Latitude, Longitude: est.Longitude},
		RMSErrorM:        est.RMSErrorM,
		Iterations:       est.Iterations,
		Converged:        est.Converged,
		Status:           est.Status,
		Fallback:         fb,
		TransducerDepthM: s.Config.TransducerDepthM,
		AnchorDepthM:     s.Config.AnchorDepthM,
		SoundSpeedMPS:    s.Config.SoundSpeedMPS,
		Stations:         stations,
		Trace:            est.Trace,
		ProcessingTime:   time.Now().UTC(),
	}, nil
}

// SolveBatch solves independent surveys concurrently, at most Workers at a
// time. Results are in input order. The first failure cancels the
// remaining solves and is returned.
func (p *Processor) SolveBatch(ctx context.Context, surveys []Survey) ([]*Result, error) {
	results := make([]*Result, len(surveys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, s := range surveys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.Solve(s)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessFiles loads and solves each station file as its own survey
func (p *Processor) ProcessFiles(ctx context.Context, filenames []string) ([]*Result, error) {
	if len(filenames) == 0 {
		return nil, fmt.Errorf("no station files to process")
	}

	fmt.Fprintf(p.out, "📊 Loading %d station file(s)...\n", len(filenames))
	surveys := make([]Survey, 0, len(filenames))
	for i, filename := range filenames {
		s, err := p.LoadSurvey(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to load survey: %w", err)
		}
		fmt.Fprintf(p.out, "   📁 %s: %d stations (%d/%d)\n", filepath.Base(filename), len(s.Stations), i+1, len(filenames))
		surveys = append(surveys, s)
	}

	fmt.Fprintf(p.out, "🧮 Solving anchor positions...\n")
	results, err := p.SolveBatch(ctx, surveys)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		p.printResult(r)
	}
	return results, nil
}

func (p *Processor) printResult(r *Result) {
	mark := "🎯"
	if !r.Converged {
		mark = "⚠️ "
	}
	fmt.Fprintf(p.out, "%s %s: anchor %.6f°, %.6f° (RMS %.2f m, %d iterations, %s)\n",
		mark, r.SurveyID, r.Anchor.Latitude, r.Anchor.Longitude, r.RMSErrorM, r.Iterations, r.Status)
	fmt.Fprintf(p.out, "   ↪ fallback %.1f m at %.1f° from drop\n", r.Fallback.DistanceM, r.Fallback.BearingDeg)

	if p.config.Verbose {
		for _, st := range r.Stations {
			fmt.Fprintf(p.out, "   %s: %.6f°, %.6f°  slant %.1f m  horizontal %.1f m  residual %+.2f m\n",
				st.ID, st.Location.Latitude, st.Location.Longitude, st.SlantM, st.HorizontalM, st.ResidualM)
		}
	}
}
