// Package processor - Export functions for survey results
package processor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"anchor-survey/internal/survey"
)

// Formats lists the supported export formats
var Formats = []string{"geojson", "kml", "csv", "json"}

// Export writes the result in the named format
func (r *Result) Export(filename, format string) error {
	switch strings.ToLower(format) {
	case "geojson":
		return r.ExportGeoJSON(filename)
	case "kml":
		return r.ExportKML(filename)
	case "csv":
		return r.ExportCSV(filename)
	case "json":
		return r.ExportJSON(filename)
	default:
		return fmt.Errorf("unsupported output format: %s (must be %s)", format, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension for an export format
func Extension(format string) string {
	return "." + strings.ToLower(format)
}

type featureCollection struct {
	Type       string           `json:"type"`
	Properties collectionProps  `json:"properties"`
	Features   []geojsonFeature `json:"features"`
}

type collectionProps struct {
	Title          string  `json:"title"`
	SurveyID       string  `json:"survey_id"`
	RMSErrorM      float64 `json:"rms_error_m"`
	Iterations     int     `json:"iterations"`
	Converged      bool    `json:"converged"`
	FallbackM      float64 `json:"fallback_m"`
	BearingDeg     float64 `json:"bearing_deg"`
	ProcessingTime string  `json:"processing_time"`
}

type geojsonFeature struct {
	Type       string          `json:"type"`
	Geometry   geojsonGeometry `json:"geometry"`
	Properties featureProps    `json:"properties"`
}

type geojsonGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type featureProps struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	RadiusM     *float64 `json:"radius_m,omitempty"`
	ResidualM   *float64 `json:"residual_m,omitempty"`
	TravelTimeS *float64 `json:"travel_time_s,omitempty"`
	DistanceM   *float64 `json:"distance_m,omitempty"`
	BearingDeg  *float64 `json:"bearing_deg,omitempty"`
}

func ptr(v float64) *float64 { return &v }

func pointFeature(loc Location, props featureProps) geojsonFeature {
	return geojsonFeature{
		Type:       "Feature",
		Geometry:   geojsonGeometry{Type: "Point", Coordinates: []float64{loc.Longitude, loc.Latitude}},
		Properties: props,
	}
}

// ExportGeoJSON exports the survey in GeoJSON format for web mapping
func (r *Result) ExportGeoJSON(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create GeoJSON file: %w", err)
	}
	defer file.Close()

	if err := r.WriteGeoJSON(file); err != nil {
		return err
	}
	return file.Close()
}

// WriteGeoJSON writes the GeoJSON FeatureCollection to w
func (r *Result) WriteGeoJSON(w io.Writer) error {
	features := []geojsonFeature{
		pointFeature(r.Anchor, featureProps{Name: "Estimated Anchor Position", Type: "anchor"}),
		pointFeature(r.Drop, featureProps{Name: "Drop Position", Type: "drop"}),
	}

	if r.RMSErrorM > 0 {
		features = append(features, circleFeature(r.Anchor, r.RMSErrorM, featureProps{
			Name: "RMS Error", Type: "rms_area", RadiusM: ptr(r.RMSErrorM),
		}))
	}

	for _, st := range r.Stations {
		features = append(features, pointFeature(st.Location, featureProps{
			Name:        st.ID,
			Type:        "station",
			TravelTimeS: ptr(st.TravelTime),
			ResidualM:   ptr(st.ResidualM),
		}))
		features = append(features, ringFeature(st.Location, st.HorizontalM, featureProps{
			Name:    st.ID + " range",
			Type:    "range_circle",
			RadiusM: ptr(st.HorizontalM),
		}))
	}

	features = append(features, geojsonFeature{
		Type: "Feature",
		Geometry: geojsonGeometry{
			Type: "LineString",
			Coordinates: [][]float64{
				{r.Drop.Longitude, r.Drop.Latitude},
				{r.Anchor.Longitude, r.Anchor.Latitude},
			},
		},
		Properties: featureProps{
			Name:       "Fallback",
			Type:       "fallback",
			DistanceM:  ptr(r.Fallback.DistanceM),
			BearingDeg: ptr(r.Fallback.BearingDeg),
		},
	})

	fc := featureCollection{
		Type: "FeatureCollection",
		Properties: collectionProps{
			Title:          "Anchor Survey " + r.SurveyID,
			SurveyID:       r.SurveyID,
			RMSErrorM:      r.RMSErrorM,
			Iterations:     r.Iterations,
			Converged:      r.Converged,
			FallbackM:      r.Fallback.DistanceM,
			BearingDeg:     r.Fallback.BearingDeg,
			ProcessingTime: r.ProcessingTime.Format("2006-01-02T15:04:05Z"),
		},
		Features: features,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fc); err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return nil
}

// ExportKML exports the survey in KML format for Google Earth
func (r *Result) ExportKML(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create KML file: %w", err)
	}
	defer file.Close()

	if err := r.WriteKML(file); err != nil {
		return err
	}
	return file.Close()
}

// WriteKML writes the KML document to w
func (r *Result) WriteKML(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <name>Anchor Survey %s</name>
    <description>RMS: %.2f m, Iterations: %d, Status: %s, Fallback: %.1f m at %.1f°</description>

    <Style id="anchorStyle">
      <IconStyle>
        <Icon>
          <href>http://maps.google.com/mapfiles/kml/shapes/target.png</href>
        </Icon>
        <scale>1.5</scale>
        <color>ff0000ff</color>
      </IconStyle>
    </Style>

    <Style id="dropStyle">
      <IconStyle>
        <Icon>
          <href>http://maps.google.com/mapfiles/kml/shapes/cross-hairs.png</href>
        </Icon>
        <color>ff00ffff</color>
      </IconStyle>
    </Style>

    <Style id="stationStyle">
      <IconStyle>
        <Icon>
          <href>http://maps.google.com/mapfiles/kml/shapes/placemark_circle.png</href>
        </Icon>
        <color>ff00ff00</color>
      </IconStyle>
    </Style>

    <Style id="rangeStyle">
      <LineStyle>
        <color>7fff0000</color>
        <width>1</width>
      </LineStyle>
    </Style>

    <Style id="rmsStyle">
      <LineStyle>
        <color>7f0000ff</color>
        <width>2</width>
      </LineStyle>
      <PolyStyle>
        <color>3f0000ff</color>
      </PolyStyle>
    </Style>

    <Style id="fallbackStyle">
      <LineStyle>
        <color>ff00ffff</color>
        <width>2</width>
      </LineStyle>
    </Style>
`, xmlEscape(r.SurveyID), r.RMSErrorM, r.Iterations, r.Status, r.Fallback.DistanceM, r.Fallback.BearingDeg)

	ew.printf(`
    <Placemark>
      <name>Estimated Anchor Position</name>
      <description>%.6f, %.6f</description>
      <styleUrl>#anchorStyle</styleUrl>
      <Point>
        <coordinates>%.8f,%.8f,0</coordinates>
      </Point>
    </Placemark>

    <Placemark>
      <name>Drop Position</name>
      <styleUrl>#dropStyle</styleUrl>
      <Point>
        <coordinates>%.8f,%.8f,0</coordinates>
      </Point>
    </Placemark>

    <Placemark>
      <name>Fallback</name>
      <description>%.1f m at %.1f°</description>
      <styleUrl>#fallbackStyle</styleUrl>
      <LineString>
        <coordinates>
          %.8f,%.8f,0 %.8f,%.8f,0
        </coordinates>
      </LineString>
    </Placemark>
`, r.Anchor.Latitude, r.Anchor.Longitude,
		r.Anchor.Longitude, r.Anchor.Latitude,
		r.Drop.Longitude, r.Drop.Latitude,
		r.Fallback.DistanceM, r.Fallback.BearingDeg,
		r.Drop.Longitude, r.Drop.Latitude, r.Anchor.Longitude, r.Anchor.Latitude)

	if r.RMSErrorM > 0 {
		ew.printf(`
    <Placemark>
      <name>RMS Error</name>
      <description>%.2f meter radius</description>
      <styleUrl>#rmsStyle</styleUrl>
      <Polygon>
        <outerBoundaryIs>
          <LinearRing>
            <coordinates>
`, r.RMSErrorM)
		writeKMLRing(ew, generateCirclePoints(r.Anchor, r.RMSErrorM, 36))
		ew.printf(`
            </coordinates>
          </LinearRing>
        </outerBoundaryIs>
      </Polygon>
    </Placemark>
`)
	}

	for _, st := range r.Stations {
		ew.printf(`
    <Placemark>
      <name>%s</name>
      <description>Travel time: %.4f s, Horizontal range: %.1f m, Residual: %+.2f m</description>
      <styleUrl>#stationStyle</styleUrl>
      <Point>
        <coordinates>%.8f,%.8f,0</coordinates>
      </Point>
    </Placemark>

    <Placemark>
      <name>%s range</name>
      <styleUrl>#rangeStyle</styleUrl>
      <LineString>
        <coordinates>
`, st.ID, st.TravelTime, st.HorizontalM, st.ResidualM, st.Location.Longitude, st.Location.Latitude, st.ID)
		writeKMLRing(ew, generateCirclePoints(st.Location, st.HorizontalM, 72))
		ew.printf(`
        </coordinates>
      </LineString>
    </Placemark>
`)
	}

	ew.printf(`
  </Document>
</kml>
`)
	return ew.err
}

func writeKMLRing(ew *errWriter, points []Location) {
	for _, p := range points {
		ew.printf("%.8f,%.8f,0 ", p.Longitude, p.Latitude)
	}
	// close the ring
	if len(points) > 0 {
		ew.printf("%.8f,%.8f,0", points[0].Longitude, points[0].Latitude)
	}
}

// ExportCSV exports the survey in CSV format for spreadsheet analysis
func (r *Result) ExportCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if err := r.WriteCSV(file); err != nil {
		return err
	}
	return file.Close()
}

// WriteCSV writes metadata, station and trace tables to w
func (r *Result) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	// Sections have different widths
	writer.FieldsPerRecord = -1

	rows := [][]string{
		{"# Anchor Survey", r.SurveyID},
		{"# Processing Time", r.ProcessingTime.Format("2006-01-02 15:04:05")},
		{"# Drop Position", fmt.Sprintf("%.8f,%.8f", r.Drop.Latitude, r.Drop.Longitude)},
		{"# Anchor Position", fmt.Sprintf("%.8f,%.8f", r.Anchor.Latitude, r.Anchor.Longitude)},
		{"# RMS Error m", fmt.Sprintf("%.3f", r.RMSErrorM)},
		{"# Iterations", fmt.Sprintf("%d", r.Iterations)},
		{"# Status", r.Status.String()},
		{"# Fallback m", fmt.Sprintf("%.2f", r.Fallback.DistanceM)},
		{"# Bearing deg", fmt.Sprintf("%.1f", r.Fallback.BearingDeg)},
		{"# Transducer Depth m", fmt.Sprintf("%.2f", r.TransducerDepthM)},
		{"# Sound Speed m/s", fmt.Sprintf("%.1f", r.SoundSpeedMPS)},
		{""},
		{"# Stations"},
		{"Station_ID", "Latitude", "Longitude", "Travel_Time_s", "Slant_m", "Horizontal_m", "Residual_m"},
	}
	for _, st := range r.Stations {
		rows = append(rows, []string{
			st.ID,
			fmt.Sprintf("%.8f", st.Location.Latitude),
			fmt.Sprintf("%.8f", st.Location.Longitude),
			fmt.Sprintf("%.6f", st.TravelTime),
			fmt.Sprintf("%.3f", st.SlantM),
			fmt.Sprintf("%.3f", st.HorizontalM),
			fmt.Sprintf("%.3f", st.ResidualM),
		})
	}

	rows = append(rows, []string{""}, []string{"# Iterations"},
		[]string{"Iteration", "Latitude", "Longitude", "RMS_m", "Step_m"})
	for _, it := range r.Trace {
		rows = append(rows, []string{
			fmt.Sprintf("%d", it.Iteration),
			fmt.Sprintf("%.8f", it.Latitude),
			fmt.Sprintf("%.8f", it.Longitude),
			fmt.Sprintf("%.4f", it.RMSErrorM),
			fmt.Sprintf("%.4f", it.StepM),
		})
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// ExportJSON writes the full result as indented JSON
func (r *Result) ExportJSON(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return file.Close()
}

func circleFeature(center Location, radius float64, props featureProps) geojsonFeature {
	return geojsonFeature{
		Type:       "Feature",
		Geometry:   geojsonGeometry{Type: "Polygon", Coordinates: [][][]float64{closedRing(center, radius, 64)}},
		Properties: props,
	}
}

func ringFeature(center Location, radius float64, props featureProps) geojsonFeature {
	return geojsonFeature{
		Type:       "Feature",
		Geometry:   geojsonGeometry{Type: "LineString", Coordinates: closedRing(center, radius, 72)},
		Properties: props,
	}
}

func closedRing(center Location, radius float64, n int) [][]float64 {
	points := generateCirclePoints(center, radius, n)
	coordinates := make([][]float64, len(points)+1)
	for i, p := range points {
		coordinates[i] = []float64{p.Longitude, p.Latitude}
	}
	coordinates[len(points)] = coordinates[0]
	return coordinates
}

// generateCirclePoints returns numPoints positions at radiusMeters around
// center on the local tangent plane
func generateCirclePoints(center Location, radiusMeters float64, numPoints int) []Location {
	points := make([]Location, numPoints)
	for i := range points {
		angle := 2 * math.Pi * float64(i) / float64(numPoints)
		lat, lon := survey.FromLocal(radiusMeters*math.Cos(angle), radiusMeters*math.Sin(angle),
			center.Latitude, center.Longitude)
		points[i] = Location{Latitude: lat, Longitude: lon}
	}
	return points
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

var xmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string {
	return xmlReplacer.Replace(s)
}
