package gps

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"
)

// GPSDClient tracks the position reported by a gpsd daemon
type GPSDClient struct {
	session  *gpsd.Session
	position Position
	fixChan  chan Position
	mu       sync.RWMutex
	host     string
	port     string
	logger   *slog.Logger
}

// NewGPSDClient creates a gpsd receiver; the connection is made by Start
func NewGPSDClient(host, port string, logger *slog.Logger) *GPSDClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GPSDClient{
		fixChan: make(chan Position, 10),
		host:    host,
		port:    port,
		logger:  logger.With(slog.String("component", "gps"), slog.String("mode", "gpsd")),
	}
}

// Start connects to gpsd and begins watching TPV and SKY reports
func (g *GPSDClient) Start() error {
	address := gpsd.DefaultAddress
	if g.host != "" && g.port != "" {
		address = net.JoinHostPort(g.host, g.port)
	}

	session, err := gpsd.Dial(address)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %s: %w", address, err)
	}
	g.session = session

	g.session.AddFilter("TPV", g.handleTPV)
	g.session.AddFilter("SKY", g.handleSKY)
	g.session.Watch()

	g.logger.Info("connected to gpsd", slog.String("address", address))
	return nil
}

func (g *GPSDClient) handleTPV(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok {
		return
	}

	// gpsd modes: 0/1 no fix, 2 2D, 3 3D
	if tpv.Mode < 2 || (tpv.Lat == 0 && tpv.Lon == 0) {
		return
	}

	g.mu.Lock()
	pos := Position{
		Latitude:   tpv.Lat,
		Longitude:  tpv.Lon,
		Altitude:   tpv.Alt,
		Timestamp:  tpv.Time,
		FixQuality: 1,
		Satellites: g.position.Satellites, // TPV has no satellite count
	}
	g.position = pos
	g.mu.Unlock()

	select {
	case g.fixChan <- pos:
	default:
	}
}

func (g *GPSDClient) handleSKY(r interface{}) {
	sky, ok := r.(*gpsd.SKYReport)
	if !ok {
		return
	}

	// Keep the count even before the first TPV so it is not lost
	g.mu.Lock()
	g.position.Satellites = len(sky.Satellites)
	g.mu.Unlock()
}

// WaitForFix blocks until a TPV fix arrives
func (g *GPSDClient) WaitForFix(ctx context.Context, timeout time.Duration) (Position, error) {
	if pos, err := g.CurrentPosition(); err == nil {
		return pos, nil
	}
	return waitForFix(ctx, g.fixChan, timeout)
}

// CurrentPosition returns the latest fix
func (g *GPSDClient) CurrentPosition() (Position, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.position.FixQuality == 0 {
		return Position{}, ErrNoFix
	}
	return g.position, nil
}

func (g *GPSDClient) IsFixValid() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.position.FixQuality > 0
}

func (g *GPSDClient) FixQualityString() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fixQualityString(g.position.FixQuality) + " (via gpsd)"
}

func (g *GPSDClient) Close() error {
	if g.session != nil {
		g.session.Close()
	}
	return nil
}
