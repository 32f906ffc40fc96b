package collector

import (
	"context"
	"io"
	"time"

	"anchor-survey/internal/gps"
)

type noFixReceiver struct{}

func (noFixReceiver) Start() error { return nil }
func (noFixReceiver) WaitForFix(ctx context.Context, timeout time.Duration) (gps.Position, error) {
	return gps.Position{}, gps.ErrNoFix
}
func (noFixReceiver) CurrentPosition() (gps.Position, error) { return gps.Position{}, gps.ErrNoFix }
func (noFixReceiver) IsFixValid() bool { return false }
func (noFixReceiver) FixQualityString() string { return "Invalid" }
func (noFixReceiver) Close() error { return nil }

// newBlockingReader returns a reader whose Read blocks until the writer is closed
func newBlockingReader() (io.Reader, io.Closer) {
	r, w := io.Pipe()
	return r, w
}
