package processor

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
)

const (
	dropLat = 35.951133
	dropLon = -75.130367
)

func testConfig() *Config {
	return &Config{
		Survey: survey.SurveyConfig{
			DropLatitude:     dropLat,
			DropLongitude:    dropLon,
			TransducerDepthM: 5,
			SoundSpeedMPS:    1500,
		},
		Format:  stationfile.DefaultFormat(),
		Workers: 2,
	}
}

// syntheticSurvey places four stations on a ring around the drop with
// noise-free travel times to an anchor offset east and north by (dx, dy)
func syntheticSurvey(id string, dx, dy float64, cfg survey.SurveyConfig) (Survey, Location) {
	aLat, aLon := survey.FromLocal(dx, dy, cfg.DropLatitude, cfg.DropLongitude)
	var stations []survey.StationRecord
	for i := 0; i < 4; i++ {
		angle := 2 * math.Pi * float64(i) / 4
		lat, lon := survey.FromLocal(700*math.Cos(angle), 700*math.Sin(angle), cfg.DropLatitude, cfg.DropLongitude)
		h := survey.Distance(lat, lon, aLat, aLon)
		stations = append(stations, survey.StationRecord{
			Latitude:   lat,
			Longitude:  lon,
			TravelTime: math.Hypot(h, cfg.VerticalOffset()) / cfg.SoundSpeedMPS,
		})
	}
	return Survey{ID: id, Stations: stations, Config: cfg}, Location{Latitude: aLat, Longitude: aLon}
}

func newTestProcessor(t *testing.T, cfg *Config) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg)
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	p.SetOutput(&bytes.Buffer{})
	return p
}

func TestNewProcessorValidation(t *testing.T) {
	if _, err := NewProcessor(nil); err == nil {
		t.Error("Expected error for nil config")
	}
	cfg := testConfig()
	cfg.Survey.SoundSpeedMPS = 0
	if _, err := NewProcessor(cfg); !errors.Is(err, survey.ErrInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}
}

func TestSolve(t *testing.T) {
	cfg := testConfig()
	p := newTestProcessor(t, cfg)
	s, truth := syntheticSurvey("s1", 40, -25, cfg.Survey)

	res, err := p.Solve(s)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if d := survey.Distance(res.Anchor.Latitude, res.Anchor.Longitude, truth.Latitude, truth.Longitude); d > 0.5 {
		t.Errorf("Anchor %.2f m from truth", d)
	}
	if !res.Converged || res.Status != survey.Converged {
		t.Errorf("Expected converged result, got %v", res.Status)
	}
	if math.Abs(res.Fallback.DistanceM-math.Hypot(40, 25)) > 1.0 {
		t.Errorf("Expected fallback near %.1f m, got %.1f m", math.Hypot(40, 25), res.Fallback.DistanceM)
	}
	// East and south of the drop
	if res.Fallback.BearingDeg < 90 || res.Fallback.BearingDeg > 180 {
		t.Errorf("Expected bearing in the south-east quadrant, got %.1f", res.Fallback.BearingDeg)
	}
	if len(res.Stations) != 4 || res.Stations[0].ID != "S1" {
		t.Errorf("Unexpected stations %+v", res.Stations)
	}
	for _, st := range res.Stations {
		if math.Abs(st.ResidualM) > 0.5 {
			t.Errorf("%s residual %.3f m", st.ID, st.ResidualM)
		}
	}
}

func TestSolveIllConditioned(t *testing.T) {
	cfg := testConfig()
	p := newTestProcessor(t, cfg)
	s, _ := syntheticSurvey("short", 0, 0, cfg.Survey)
	s.Stations = s.Stations[:2]

	_, err := p.Solve(s)
	if !errors.Is(err, survey.ErrIllConditionedGeometry) {
		t.Fatalf("Expected ill-conditioned geometry, got %v", err)
	}
	if !strings.Contains(err.Error(), "short") {
		t.Errorf("Expected error to name the survey, got %v", err)
	}
}

func TestSolveBatchKeepsOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 3
	p := newTestProcessor(t, cfg)

	var surveys []Survey
	var truths []Location
	for i := 0; i < 8; i++ {
		s, truth := syntheticSurvey(fmt.Sprintf("s%d", i), float64(10*i), float64(-5*i), cfg.Survey)
		surveys = append(surveys, s)
		truths = append(truths, truth)
	}

	results, err := p.SolveBatch(context.Background(), surveys)
	if err != nil {
		t.Fatalf("SolveBatch failed: %v", err)
	}
	if len(results) != len(surveys) {
		t.Fatalf("Expected %d results, got %d", len(surveys), len(results))
	}
	for i, r := range results {
		if r.SurveyID != surveys[i].ID {
			t.Errorf("result %d is survey %s, want %s", i, r.SurveyID, surveys[i].ID)
		}
		if d := survey.Distance(r.Anchor.Latitude, r.Anchor.Longitude, truths[i].Latitude, truths[i].Longitude); d > 0.5 {
			t.Errorf("survey %s anchor %.2f m from truth", r.SurveyID, d)
		}
	}
}

func TestSolveBatchReturnsFirstError(t *testing.T) {
	cfg := testConfig()
	p := newTestProcessor(t, cfg)

	good, _ := syntheticSurvey("good", 10, 10, cfg.Survey)
	bad, _ := syntheticSurvey("bad", 10, 10, cfg.Survey)
	bad.Stations = bad.Stations[:1]

	_, err := p.SolveBatch(context.Background(), []Survey{good, bad, good})
	if !errors.Is(err, survey.ErrIllConditionedGeometry) {
		t.Errorf("Expected ill-conditioned geometry, got %v", err)
	}
}

func TestSolveBatchCancelled(t *testing.T) {
	cfg := testConfig()
	p := newTestProcessor(t, cfg)
	s, _ := syntheticSurvey("s", 0, 0, cfg.Survey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.SolveBatch(ctx, []Survey{s}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProcessFiles(t *testing.T) {
	cfg := testConfig()
	p := newTestProcessor(t, cfg)
	s, truth := syntheticSurvey("ignored", -30, 20, cfg.Survey)

	path := filepath.Join(t.TempDir(), "drop-07.dat")
	w, err := stationfile.Create(path, cfg.Format, "drop-07")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, st := range s.Stations {
		if err := w.Append(st); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	w.Close()

	results, err := p.ProcessFiles(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("ProcessFiles failed: %v", err)
	}
	r := results[0]
	if r.SurveyID != "drop-07" || r.Filename != path {
		t.Errorf("Unexpected survey identity %q %q", r.SurveyID, r.Filename)
	}
	if d := survey.Distance(r.Anchor.Latitude, r.Anchor.Longitude, truth.Latitude, truth.Longitude); d > 0.5 {
		t.Errorf("Anchor %.2f m from truth", d)
	}

	if _, err := p.ProcessFiles(context.Background(), nil); err == nil {
		t.Error("Expected error for no files")
	}
}

func solvedResult(t *testing.T) *Result {
	t.Helper()
	cfg := testConfig()
	p := newTestProcessor(t, cfg)
	s, _ := syntheticSurvey("export", 25, 15, cfg.Survey)
	s.Stations[0].TravelTime *= 1.001 // leave a non-zero RMS
	res, err := p.Solve(s)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	return res
}

func TestWriteGeoJSON(t *testing.T) {
	res := solvedResult(t)

	var buf bytes.Buffer
	if err := res.WriteGeoJSON(&buf); err != nil {
		t.Fatalf("WriteGeoJSON failed: %v", err)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties struct {
				Type string `json:"type"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(buf.Bytes(), &fc); err != nil {
		t.Fatalf("GeoJSON is not valid JSON: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("Expected FeatureCollection, got %s", fc.Type)
	}

	counts := map[string]int{}
	for _, f := range fc.Features {
		counts[f.Properties.Type]++
	}
	want := map[string]int{"anchor": 1, "drop": 1, "rms_area": 1, "station": 4, "range_circle": 4, "fallback": 1}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("Expected %d %s features, got %d", v, k, counts[k])
		}
	}
}

func TestWriteCSV(t *testing.T) {
	res := solvedResult(t)

	var buf bytes.Buffer
	if err := res.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	r := csv.NewReader(&buf)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("CSV does not parse: %v", err)
	}

	header := -1
	for i, rec := range records {
		if rec[0] == "Station_ID" {
			header = i
			break
		}
	}
	if header < 0 {
		t.Fatal("station table header not found")
	}
	if len(records) < header+5 || records[header+1][0] != "S1" || records[header+4][0] != "S4" {
		t.Errorf("Expected 4 station rows after header, got %v", records[header+1:])
	}
}

func TestWriteKML(t *testing.T) {
	res := solvedResult(t)
	res.SurveyID = "drop <7>"

	var buf bytes.Buffer
	if err := res.WriteKML(&buf); err != nil {
		t.Fatalf("WriteKML failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") || !strings.Contains(out, "</kml>") {
		t.Error("KML document is incomplete")
	}
	if strings.Count(out, "<Placemark>") != 3+1+2*4 {
		t.Errorf("Expected %d placemarks, got %d", 3+1+2*4, strings.Count(out, "<Placemark>"))
	}
	if !strings.Contains(out, "drop &lt;7&gt;") {
		t.Error("Expected survey ID to be escaped")
	}
}

func TestExportFormats(t *testing.T) {
	res := solvedResult(t)
	dir := t.TempDir()

	for _, format := range Formats {
		path := filepath.Join(dir, "survey"+Extension(format))
		if err := res.Export(path, format); err != nil {
			t.Fatalf("Export %s failed: %v", format, err)
		}
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("Export %s produced no output", format)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "survey.json"))
	if err != nil {
		t.Fatalf("read JSON export: %v", err)
	}
	var decoded struct {
		SurveyID string `json:"survey_id"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("JSON export does not parse: %v", err)
	}
	if decoded.SurveyID != "export" || decoded.Status != "converged" {
		t.Errorf("Unexpected JSON export %+v", decoded)
	}

	if err := res.Export(filepath.Join(dir, "x.shp"), "shp"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
