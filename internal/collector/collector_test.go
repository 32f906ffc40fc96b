package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"anchor-survey/internal/config"
	"anchor-survey/internal/gps"
	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Collection.OutputDir = t.TempDir()
	cfg.Collection.SurveyID = "test-survey"
	cfg.Survey.DropLatitude = 35.951133
	cfg.Survey.DropLongitude = -75.130367
	cfg.GPS = config.GPSConfig{
		Mode:            "manual",
		ManualLatitude:  35.955,
		ManualLongitude: -75.13,
	}
	return cfg
}

// roundTripTime returns the two-way travel time a station would log for an
// anchor at (lat, lon)
func roundTripTime(cfg *config.Config, stLat, stLon, lat, lon float64) float64 {
	h := survey.Distance(stLat, stLon, lat, lon)
	slant := math.Hypot(h, cfg.Survey.TransducerDepth)
	return 2 * slant / cfg.Survey.SoundSpeed
}

func TestParseReading(t *testing.T) {
	r, err := ParseReading("0.0812")
	if err != nil {
		t.Fatalf("ParseReading failed: %v", err)
	}
	if r.HasPosition || r.TravelTime != 0.0812 {
		t.Errorf("Unexpected reading %+v", r)
	}

	r, err = ParseReading("35.95 -75.13 0.07")
	if err != nil {
		t.Fatalf("ParseReading failed: %v", err)
	}
	if !r.HasPosition || r.Latitude != 35.95 || r.Longitude != -75.13 {
		t.Errorf("Unexpected reading %+v", r)
	}

	for _, bad := range []string{"", "fast", "0", "-0.1", "35.95 0.07", "95 10 0.07", "35 x 0.07",
		"inf", "+Inf", "NaN", "NaN 10 1.2", "35.95 nan 0.07", "35.95 -75.13 Inf"} {
		if _, err := ParseReading(bad); !errors.Is(err, survey.ErrInvalidInput) {
			t.Errorf("ParseReading(%q): expected invalid input, got %v", bad, err)
		}
	}
}

func TestRunLogsStationsFromManualSource(t *testing.T) {
	cfg := testConfig(t)
	c := NewCollector(cfg, nil)
	var out bytes.Buffer
	c.SetOutput(&out)

	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer c.Close()

	if err := c.WaitForGPSFix(context.Background()); err != nil {
		t.Fatalf("WaitForGPSFix failed: %v", err)
	}

	input := "0.080\n\n# comment\nnot-a-number\n0.082\n"
	n, err := c.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 stations logged, got %d", n)
	}
	if !strings.Contains(out.String(), "Skipped") {
		t.Errorf("Expected bad line to be reported, output:\n%s", out.String())
	}

	stations, err := stationfile.Load(c.Filename(), cfg.StationFormat())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(stations) != 2 {
		t.Fatalf("Expected 2 stations in file, got %d", len(stations))
	}
	if math.Abs(stations[0].Latitude-35.955) > 1e-7 || math.Abs(stations[0].Longitude+75.13) > 1e-7 {
		t.Errorf("Expected manual position, got %.7f, %.7f", stations[0].Latitude, stations[0].Longitude)
	}
	if math.Abs(stations[0].TravelTime-0.040) > 1e-9 {
		t.Errorf("Expected halved travel time 0.040, got %v", stations[0].TravelTime)
	}
	if stations[0].Time.IsZero() {
		t.Error("Expected station to be timestamped")
	}
}

func TestRunReportsProvisionalAnchor(t *testing.T) {
	cfg := testConfig(t)
	c := NewCollector(cfg, nil)
	var out bytes.Buffer
	c.SetOutput(&out)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer c.Close()

	anchorLat, anchorLon := 35.9515, -75.1298
	var lines []string
	for _, p := range [][2]float64{{35.9580, -75.1300}, {35.9470, -75.1380}, {35.9470, -75.1220}, {35.9515, -75.1200}} {
		lines = append(lines, fmt.Sprintf("%.6f %.6f %.6f", p[0], p[1], roundTripTime(cfg, p[0], p[1], anchorLat, anchorLon)))
	}

	n, err := c.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("Expected 4 stations, got %d", n)
	}
	if !strings.Contains(out.String(), "Provisional anchor:") {
		t.Errorf("Expected provisional anchor report, output:\n%s", out.String())
	}

	est, fb, err := c.Provisional()
	if err != nil {
		t.Fatalf("Provisional failed: %v", err)
	}
	if d := survey.Distance(est.Latitude, est.Longitude, anchorLat, anchorLon); d > 1.0 {
		t.Errorf("Provisional anchor %.1f m from truth", d)
	}
	if fb.DistanceM <= 0 {
		t.Errorf("Expected a positive fallback, got %v", fb.DistanceM)
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	c := NewCollector(cfg, nil)
	c.SetOutput(&bytes.Buffer{})
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that never returns data
	blocking, closer := newBlockingReader()
	defer closer.Close()
	_, err := c.Run(ctx, blocking)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLogStationWithoutFix(t *testing.T) {
	cfg := testConfig(t)
	c := NewCollector(cfg, nil)
	c.SetReceiver(noFixReceiver{})
	c.SetOutput(&bytes.Buffer{})
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer c.Close()

	if _, err := c.LogStation(Reading{TravelTime: 0.08}); !errors.Is(err, gps.ErrNoFix) {
		t.Errorf("Expected ErrNoFix, got %v", err)
	}

	n, err := c.Run(context.Background(), strings.NewReader("0.08\n"))
	if err != nil || n != 0 {
		t.Errorf("Expected reading to be skipped without a fix, got n=%d err=%v", n, err)
	}
}
