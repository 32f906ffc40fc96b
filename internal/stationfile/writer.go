package stationfile

import (
	"fmt"
	"os"
	"sync"
	"time"

	"anchor-survey/internal/survey"
)

// Writer appends stations to a station file as they are logged. Each row
// is synced so a crash loses at most the station being written.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	format Format
	count  int
}

// Create opens filename for appending, writing a comment header when the
// file is new
func Create(filename string, f Format, surveyID string) (*Writer, error) {
	if _, err := f.latSign(); err != nil {
		return nil, err
	}
	if _, err := f.lonSign(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create station file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat station file: %w", err)
	}

	w := &Writer{file: file, format: f}
	if info.Size() == 0 {
		kind := "one-way"
		if f.RoundTrip {
			kind = "round-trip"
		}
		header := fmt.Sprintf("# survey %s started %s\n# lat_deg lat_min(%s) lon_deg lon_min(%s) travel_time_s(%s) [time]\n",
			surveyID, time.Now().UTC().Format(time.RFC3339),
			f.LatitudeHemisphere, f.LongitudeHemisphere, kind)
		if _, err := file.WriteString(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return w, nil
}

// Append writes one station row
func (w *Writer) Append(st survey.StationRecord) error {
	row, err := FormatRow(st, w.format)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.WriteString(row + "\n"); err != nil {
		return fmt.Errorf("failed to write station: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync station file: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of stations appended by this writer
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Name returns the file path
func (w *Writer) Name() string {
	return w.file.Name()
}

// Close closes the underlying file
func (w *Writer) Close() error {
	return w.file.Close()
}
