package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

// NMEAReceiver tracks the position reported by an NMEA 0183 stream
type NMEAReceiver struct {
	src      io.ReadCloser
	position Position
	fixChan  chan Position
	mu       sync.RWMutex
	logger   *slog.Logger
	done     chan struct{}
}

// NewNMEASerial opens a serial NMEA receiver
func NewNMEASerial(portName string, baudRate int, logger *slog.Logger) (*NMEAReceiver, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS port %s: %w", portName, err)
	}

	r := NewNMEAReader(port, logger)
	r.configureUbloxNMEA(port)
	return r, nil
}

// NewNMEAReader creates a receiver over any NMEA sentence stream
func NewNMEAReader(src io.ReadCloser, logger *slog.Logger) *NMEAReceiver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NMEAReceiver{
		src:     src,
		fixChan: make(chan Position, 10),
		logger:  logger.With(slog.String("component", "gps"), slog.String("mode", "nmea")),
		done:    make(chan struct{}),
	}
}

// configureUbloxNMEA asks u-blox receivers to emit GGA and RMC on UART1.
// Other receivers ignore the UBX frames.
func (n *NMEAReceiver) configureUbloxNMEA(w io.Writer) {
	// UBX-CFG-MSG class 0xF0 id 0x00 (GGA) and id 0x04 (RMC), rate 1 on port 1
	ggaCmd := []byte{0xB5, 0x62, 0x06, 0x01, 0x08, 0x00, 0xF0, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01, 0x31}
	rmcCmd := []byte{0xB5, 0x62, 0x06, 0x01, 0x08, 0x00, 0xF0, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x05, 0x3B}

	for _, cmd := range [][]byte{ggaCmd, rmcCmd} {
		if _, err := w.Write(cmd); err != nil {
			n.logger.Warn("failed to send u-blox configuration", slog.Any("error", err))
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	n.logger.Debug("sent u-blox configuration for NMEA GGA/RMC output")
}

// Start begins reading sentences in the background
func (n *NMEAReceiver) Start() error {
	go n.readLoop()
	return nil
}

func (n *NMEAReceiver) readLoop() {
	defer close(n.done)
	scanner := bufio.NewScanner(n.src)
	n.logger.Debug("NMEA read loop started")

	for scanner.Scan() {
		n.HandleSentence(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		n.logger.Warn("NMEA read loop error", slog.Any("error", err))
	}
	n.logger.Debug("NMEA read loop ended")
}

// Done is closed when the sentence stream ends
func (n *NMEAReceiver) Done() <-chan struct{} {
	return n.done
}

// HandleSentence parses one line and updates the position from GGA and
// RMC sentences. Anything else is ignored.
func (n *NMEAReceiver) HandleSentence(line string) {
	if len(line) == 0 || line[0] != '$' {
		return
	}
	// Receivers mixing UBX and NMEA put binary on the same line stream
	for _, r := range line {
		if r < 32 || r > 126 {
			return
		}
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		n.logger.Debug("NMEA parse error", slog.Any("error", err), slog.String("line", line))
		return
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		n.processGGA(s)
	case nmea.RMC:
		n.processRMC(s)
	default:
		n.logger.Debug("ignoring NMEA sentence", slog.String("type", sentence.DataType()))
	}
}

func (n *NMEAReceiver) processGGA(s nmea.GGA) {
	var fixQuality int
	switch s.FixQuality {
	case nmea.GPS:
		fixQuality = 1
	case nmea.DGPS:
		fixQuality = 2
	case nmea.PPS:
		fixQuality = 3
	case nmea.RTK:
		fixQuality = 4
	case nmea.FRTK:
		fixQuality = 5
	case nmea.Manual:
		fixQuality = 7
	default:
		fixQuality = 0
	}
	if fixQuality == 0 {
		return
	}

	pos := Position{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Altitude:   s.Altitude,
		Timestamp:  time.Now().UTC(),
		FixQuality: fixQuality,
		Satellites: int(s.NumSatellites),
	}

	n.mu.Lock()
	n.position = pos
	n.mu.Unlock()

	n.logger.Debug("position updated",
		slog.Float64("latitude", pos.Latitude),
		slog.Float64("longitude", pos.Longitude),
		slog.Int("quality", pos.FixQuality),
		slog.Int("satellites", pos.Satellites))

	select {
	case n.fixChan <- pos:
	default:
	}
}

// processRMC refreshes the position and time of an existing GGA fix.
// RMC carries no fix quality, so it never creates a fix on its own.
func (n *NMEAReceiver) processRMC(s nmea.RMC) {
	if s.Validity != nmea.ValidRMC {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.position.FixQuality == 0 {
		return
	}

	ts := time.Now().UTC()
	if s.Time.Valid {
		year, month, day := ts.Date()
		if s.Date.Valid {
			year, month, day = 2000+s.Date.YY, time.Month(s.Date.MM), s.Date.DD
		}
		ts = time.Date(year, month, day,
			s.Time.Hour, s.Time.Minute, s.Time.Second,
			s.Time.Millisecond*int(time.Millisecond), time.UTC)
	}

	n.position.Latitude = s.Latitude
	n.position.Longitude = s.Longitude
	n.position.Timestamp = ts
}

// WaitForFix blocks until a GGA fix arrives
func (n *NMEAReceiver) WaitForFix(ctx context.Context, timeout time.Duration) (Position, error) {
	if pos, err := n.CurrentPosition(); err == nil {
		return pos, nil
	}
	pos, err := waitForFix(ctx, n.fixChan, timeout)
	if err != nil {
		return Position{}, fmt.Errorf("%w. The receiver may be emitting UBX binary instead of NMEA GGA/RMC; consider --gps-mode=gpsd", err)
	}
	return pos, nil
}

// CurrentPosition returns the latest fix
func (n *NMEAReceiver) CurrentPosition() (Position, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.position.FixQuality == 0 {
		return Position{}, ErrNoFix
	}
	return n.position, nil
}

func (n *NMEAReceiver) IsFixValid() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position.FixQuality > 0
}

func (n *NMEAReceiver) FixQualityString() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fixQualityString(n.position.FixQuality)
}

func (n *NMEAReceiver) Close() error {
	if n.src != nil {
		return n.src.Close()
	}
	return nil
}
