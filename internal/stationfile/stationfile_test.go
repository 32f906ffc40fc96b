package stationfile

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anchor-survey/internal/survey"
)

const sample = `# survey 2024-07 drop 35 57.068 N 75 7.822 W
35 57.100 75 7.800 0.080

35 57.040 75 7.850 0.076
35 57.070 75 7.790 0.074 2024-07-12T14:03:05Z
`

func TestParse(t *testing.T) {
	stations, err := Parse(strings.NewReader(sample), DefaultFormat())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(stations) != 3 {
		t.Fatalf("Expected 3 stations, got %d", len(stations))
	}

	first := stations[0]
	if math.Abs(first.Latitude-(35+57.1/60)) > 1e-12 {
		t.Errorf("Expected latitude %.8f, got %.8f", 35+57.1/60, first.Latitude)
	}
	if math.Abs(first.Longitude-(-(75 + 7.8/60))) > 1e-12 {
		t.Errorf("Expected western longitude, got %.8f", first.Longitude)
	}
	if math.Abs(first.TravelTime-0.040) > 1e-12 {
		t.Errorf("Expected round trip time to be halved to 0.040, got %v", first.TravelTime)
	}
	if !first.Time.IsZero() {
		t.Errorf("Expected no timestamp, got %v", first.Time)
	}

	want := time.Date(2024, 7, 12, 14, 3, 5, 0, time.UTC)
	if !stations[2].Time.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, stations[2].Time)
	}
}

func TestParseOneWayAndFlippedHemisphere(t *testing.T) {
	f := Format{LatitudeHemisphere: "S", LongitudeHemisphere: "E"}
	stations, err := Parse(strings.NewReader("-0 30.0 170 15.0 0.05\n"), f)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	st := stations[0]
	if math.Abs(st.Latitude-0.5) > 1e-12 {
		t.Errorf("Expected negative zero degrees to flip to 0.5 N, got %v", st.Latitude)
	}
	if math.Abs(st.Longitude-170.25) > 1e-12 {
		t.Errorf("Expected 170.25 E, got %v", st.Longitude)
	}
	if st.TravelTime != 0.05 {
		t.Errorf("Expected one-way time to be kept, got %v", st.TravelTime)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		row  string
		want error
	}{
		{"too few columns", "35 57.1 75 7.8", ErrMalformedRow},
		{"not a number", "35 57.1 75 x 0.08", ErrMalformedRow},
		{"minutes out of range", "35 60.0 75 7.8 0.08", survey.ErrInvalidInput},
		{"latitude out of range", "90 30.0 75 7.8 0.08", survey.ErrInvalidInput},
		{"zero travel time", "35 57.1 75 7.8 0", survey.ErrInvalidInput},
		{"bad timestamp", "35 57.1 75 7.8 0.08 yesterday", ErrMalformedRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader("# header\n"+tt.row+"\n"), DefaultFormat())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), "line 2") {
				t.Errorf("Expected error to name line 2, got %v", err)
			}
		})
	}
}

func TestDMSToDecimal(t *testing.T) {
	lat, err := DMSToDecimal(35, 57.068, 0, "N")
	if err != nil {
		t.Fatalf("DMSToDecimal failed: %v", err)
	}
	if math.Abs(lat-35.951133333) > 1e-8 {
		t.Errorf("Expected 35.9511333, got %.9f", lat)
	}

	lon, err := DMSToDecimal(75, 7, 49.32, "W")
	if err != nil {
		t.Fatalf("DMSToDecimal failed: %v", err)
	}
	if math.Abs(lon-(-75.1303666667)) > 1e-8 {
		t.Errorf("Expected -75.1303667, got %.9f", lon)
	}

	if _, err := DMSToDecimal(35, 61, 0, "N"); !errors.Is(err, survey.ErrInvalidInput) {
		t.Errorf("Expected invalid input for 61 minutes, got %v", err)
	}
	if _, err := DMSToDecimal(35, 0, 0, "Q"); !errors.Is(err, survey.ErrInvalidInput) {
		t.Errorf("Expected invalid input for bad hemisphere, got %v", err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.dat")
	f := DefaultFormat()

	in := []survey.StationRecord{
		{Latitude: 35.951667, Longitude: -75.13, TravelTime: 0.04, Time: time.Date(2024, 7, 12, 14, 3, 5, 0, time.UTC)},
		{Latitude: 35.950667, Longitude: -75.130833, TravelTime: 0.038},
		{Latitude: -0.25, Longitude: 2.5, TravelTime: 0.037},
	}

	w, err := Create(path, f, "test-survey")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, st := range in {
		if err := w.Append(st); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if w.Count() != len(in) {
		t.Errorf("Expected count %d, got %d", len(in), w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out, err := Load(path, f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d stations, got %d", len(in), len(out))
	}
	for i := range in {
		if math.Abs(out[i].Latitude-in[i].Latitude) > 1e-7 || math.Abs(out[i].Longitude-in[i].Longitude) > 1e-7 {
			t.Errorf("station %d: position %.7f,%.7f != %.7f,%.7f", i,
				out[i].Latitude, out[i].Longitude, in[i].Latitude, in[i].Longitude)
		}
		if math.Abs(out[i].TravelTime-in[i].TravelTime) > 1e-9 {
			t.Errorf("station %d: travel time %v != %v", i, out[i].TravelTime, in[i].TravelTime)
		}
		if !out[i].Time.Equal(in[i].Time) {
			t.Errorf("station %d: time %v != %v", i, out[i].Time, in[i].Time)
		}
	}

	// Reopening appends without a second header
	w, err = Create(path, f, "test-survey")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if err := w.Append(in[1]); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	w.Close()
	out, err = Load(path, f)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(out) != len(in)+1 {
		t.Errorf("Expected %d stations after append, got %d", len(in)+1, len(out))
	}
}

func TestWriterRejectsUnreadableRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.dat")
	f := DefaultFormat()
	w, err := Create(path, f, "test-survey")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	good := survey.StationRecord{Latitude: 35.95, Longitude: -75.13, TravelTime: 0.04}
	if err := w.Append(good); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	bad := []survey.StationRecord{
		{Latitude: 35.95, Longitude: -75.13, TravelTime: math.Inf(1)},
		{Latitude: 35.95, Longitude: -75.13, TravelTime: math.NaN()},
		{Latitude: 35.95, Longitude: -75.13, TravelTime: 0},
		{Latitude: 35.95, Longitude: -75.13, TravelTime: 1e-9},
		{Latitude: math.NaN(), Longitude: -75.13, TravelTime: 0.04},
		{Latitude: 35.95, Longitude: math.NaN(), TravelTime: 0.04},
		{Latitude: 91, Longitude: -75.13, TravelTime: 0.04},
	}
	for _, st := range bad {
		if err := w.Append(st); !errors.Is(err, survey.ErrInvalidInput) {
			t.Errorf("Append(%+v): expected invalid input, got %v", st, err)
		}
	}
	if w.Count() != 1 {
		t.Errorf("Expected 1 row written, got %d", w.Count())
	}
	w.Close()

	out, err := Load(path, f)
	if err != nil {
		t.Fatalf("Load failed after rejected appends: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("Expected 1 station, got %d", len(out))
	}
}

func TestFormatDMCarry(t *testing.T) {
	if got := formatDM(35.99999999999); got != "36 0.000000" {
		t.Errorf("Expected carry into next degree, got %q", got)
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"-75.130367", -75.130367},
		{"35 57.068 N", 35 + 57.068/60},
		{"75 7 49.32 W", -(75 + 7.0/60 + 49.32/3600)},
		{"33 52.5 s", -(33 + 52.5/60)},
	}
	for _, tt := range tests {
		got, err := ParseCoordinate(tt.in)
		if err != nil {
			t.Errorf("ParseCoordinate(%q) failed: %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseCoordinate(%q) = %.9f, want %.9f", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "north", "35 N", "35 x N", "35 57.0 Q"} {
		if _, err := ParseCoordinate(bad); !errors.Is(err, survey.ErrInvalidInput) {
			t.Errorf("ParseCoordinate(%q): expected invalid input, got %v", bad, err)
		}
	}
}
