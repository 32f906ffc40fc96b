// Package stationfile reads and writes survey station files (.dat).
//
// Each row is one ranging station:
//
//	lat_deg lat_min lon_deg lon_min travel_time [timestamp]
//
// Degrees and decimal minutes are unsigned and take the configured
// hemisphere; a negative degree value flips it. The optional sixth column
// is an RFC 3339 timestamp written by the survey logger. Blank lines and
// lines starting with '#' are ignored.
package stationfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"anchor-survey/internal/survey"
)

// ErrMalformedRow is returned for rows that cannot be parsed
var ErrMalformedRow = errors.New("malformed station row")

// Format describes how unsigned coordinates and travel times are read
type Format struct {
	LatitudeHemisphere  string // "N" or "S"
	LongitudeHemisphere string // "E" or "W"
	RoundTrip           bool   // travel times are two-way and are halved on read
}

// DefaultFormat matches deck box logs from the western North Atlantic
func DefaultFormat() Format {
	return Format{LatitudeHemisphere: "N", LongitudeHemisphere: "W", RoundTrip: true}
}

func (f Format) latSign() (float64, error) {
	switch strings.ToUpper(f.LatitudeHemisphere) {
	case "N", "":
		return 1, nil
	case "S":
		return -1, nil
	}
	return 0, fmt.Errorf("invalid latitude hemisphere %q", f.LatitudeHemisphere)
}

func (f Format) lonSign() (float64, error) {
	switch strings.ToUpper(f.LongitudeHemisphere) {
	case "E":
		return 1, nil
	case "W", "":
		return -1, nil
	}
	return 0, fmt.Errorf("invalid longitude hemisphere %q", f.LongitudeHemisphere)
}

// DMSToDecimal converts degrees, minutes and seconds with a hemisphere
// letter to signed decimal degrees
func DMSToDecimal(deg, min, sec float64, hemisphere string) (float64, error) {
	if min < 0 || min >= 60 {
		return 0, fmt.Errorf("%w: minutes %v outside [0,60)", survey.ErrInvalidInput, min)
	}
	if sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("%w: seconds %v outside [0,60)", survey.ErrInvalidInput, sec)
	}
	dd := math.Abs(deg) + min/60 + sec/3600
	switch strings.ToUpper(hemisphere) {
	case "N", "E":
	case "S", "W":
		dd = -dd
	default:
		return 0, fmt.Errorf("%w: invalid hemisphere %q", survey.ErrInvalidInput, hemisphere)
	}
	if math.Signbit(deg) {
		dd = -dd
	}
	return dd, nil
}

// Parse reads all station rows from r
func Parse(r io.Reader, f Format) ([]survey.StationRecord, error) {
	latSign, err := f.latSign()
	if err != nil {
		return nil, err
	}
	lonSign, err := f.lonSign()
	if err != nil {
		return nil, err
	}

	var stations []survey.StationRecord
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		st, err := parseRow(line, latSign, lonSign, f.RoundTrip)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stations = append(stations, st)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stations: %w", err)
	}
	return stations, nil
}

func parseRow(line string, latSign, lonSign float64, roundTrip bool) (survey.StationRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return survey.StationRecord{}, fmt.Errorf("%w: expected 5 or 6 columns, got %d", ErrMalformedRow, len(fields))
	}

	var v [5]float64
	for i := range v {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return survey.StationRecord{}, fmt.Errorf("%w: column %d: %v", ErrMalformedRow, i+1, err)
		}
		v[i] = x
	}

	lat, err := toDecimal(v[0], v[1], latSign, 90)
	if err != nil {
		return survey.StationRecord{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := toDecimal(v[2], v[3], lonSign, 180)
	if err != nil {
		return survey.StationRecord{}, fmt.Errorf("longitude: %w", err)
	}

	travel := v[4]
	if !(travel > 0) || math.IsInf(travel, 0) {
		return survey.StationRecord{}, fmt.Errorf("%w: travel time must be positive, got %v", survey.ErrInvalidInput, travel)
	}
	if roundTrip {
		travel /= 2
	}

	st := survey.StationRecord{Latitude: lat, Longitude: lon, TravelTime: travel}
	if len(fields) == 6 {
		ts, err := time.Parse(time.RFC3339Nano, fields[5])
		if err != nil {
			return survey.StationRecord{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedRow, err)
		}
		st.Time = ts
	}
	return st, nil
}

func toDecimal(deg, min, sign, limit float64) (float64, error) {
	if min < 0 || min >= 60 {
		return 0, fmt.Errorf("%w: minutes %v outside [0,60)", survey.ErrInvalidInput, min)
	}
	dd := math.Abs(deg) + min/60
	if dd > limit {
		return 0, fmt.Errorf("%w: %.6f exceeds %v degrees", survey.ErrInvalidInput, dd, limit)
	}
	if math.Signbit(deg) {
		sign = -sign
	}
	return sign * dd, nil
}

// Load reads a station file from disk
func Load(filename string, f Format) ([]survey.StationRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open station file: %w", err)
	}
	defer file.Close()

	stations, err := Parse(file, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return stations, nil
}

// FormatRow renders a station as a file row using the format's hemispheres
func FormatRow(st survey.StationRecord, f Format) (string, error) {
	latSign, err := f.latSign()
	if err != nil {
		return "", err
	}
	lonSign, err := f.lonSign()
	if err != nil {
		return "", err
	}

	if math.IsNaN(st.Latitude) || st.Latitude < -90 || st.Latitude > 90 {
		return "", fmt.Errorf("%w: latitude %v out of range [-90, 90]", survey.ErrInvalidInput, st.Latitude)
	}
	if math.IsNaN(st.Longitude) || st.Longitude < -180 || st.Longitude > 180 {
		return "", fmt.Errorf("%w: longitude %v out of range [-180, 180]", survey.ErrInvalidInput, st.Longitude)
	}
	travel := st.TravelTime
	if f.RoundTrip {
		travel *= 2
	}
	// The row must read back: a time that prints as zero would be refused
	if !(math.Round(travel*1e6) > 0) || math.IsInf(travel, 0) {
		return "", fmt.Errorf("%w: travel time must be positive and finite, got %v", survey.ErrInvalidInput, st.TravelTime)
	}

	row := fmt.Sprintf("%s %s %.6f",
		formatDM(st.Latitude*latSign),
		formatDM(st.Longitude*lonSign),
		travel)
	if !st.Time.IsZero() {
		row += " " + st.Time.UTC().Format(time.RFC3339Nano)
	}
	return row, nil
}

// formatDM writes a hemisphere-relative coordinate as degrees and decimal
// minutes; negative values mean the opposite hemisphere
func formatDM(v float64) string {
	neg := v < 0
	v = math.Abs(v)
	deg := math.Floor(v)
	min := (v - deg) * 60
	// Rounding to the printed precision can carry into the next degree
	if math.Round(min*1e6)/1e6 >= 60 {
		deg++
		min = 0
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d %.6f", sign, int(deg), min)
}

// ParseCoordinate reads a coordinate given as signed decimal degrees
// ("-75.130367"), degrees and decimal minutes ("75 7.822 W") or degrees,
// minutes and seconds ("75 7 49.32 W").
func ParseCoordinate(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 1 {
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: coordinate %q", survey.ErrInvalidInput, s)
		}
		return v, nil
	}
	if len(fields) != 3 && len(fields) != 4 {
		return 0, fmt.Errorf("%w: coordinate %q must be decimal degrees or 'deg min [sec] hemisphere'", survey.ErrInvalidInput, s)
	}

	hemisphere := fields[len(fields)-1]
	var parts [3]float64
	for i, f := range fields[:len(fields)-1] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: coordinate %q", survey.ErrInvalidInput, s)
		}
		parts[i] = v
	}
	return DMSToDecimal(parts[0], parts[1], parts[2], hemisphere)
}
