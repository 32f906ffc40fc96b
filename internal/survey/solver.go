package survey

import (
	"fmt"
	"log/slog"
	"math"
)

const (
	// DefaultMaxIterations bounds the Gauss-Newton loop
	DefaultMaxIterations = 50
	// DefaultToleranceM stops iterating once a step is shorter than this
	DefaultToleranceM = 0.1
	// DefaultRMSRelTol stops iterating once the relative RMS gain is below this
	DefaultRMSRelTol = 1e-6

	// maxHalvings bounds the step-halving search within one iteration
	maxHalvings = 10
	// minAxisRatio is the smallest minor/major axis ratio of the station
	// scatter accepted as a two dimensional layout
	minAxisRatio = 1e-3
	// singularTol is the relative determinant below which JtJ is singular
	singularTol = 1e-12
)

// Options control the iteration driver
type Options struct {
	MaxIterations int
	ToleranceM    float64
	RMSRelTol     float64
	Jacobian      JacobianProvider
	Logger        *slog.Logger
}

// Option customizes a solve
type Option func(*Options)

// DefaultOptions returns the solver defaults
func DefaultOptions() Options {
	return Options{
		MaxIterations: DefaultMaxIterations,
		ToleranceM:    DefaultToleranceM,
		RMSRelTol:     DefaultRMSRelTol,
		Jacobian:      AnalyticJacobian{},
	}
}

func WithMaxIterations(n int) Option { return func(o *Options) { o.MaxIterations = n } }
func WithTolerance(m float64) Option { return func(o *Options) { o.ToleranceM = m } }
func WithRMSRelTol(tol float64) Option { return func(o *Options) { o.RMSRelTol = tol } }
func WithJacobian(j JacobianProvider) Option { return func(o *Options) { o.Jacobian = j } }
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

func (o Options) validate() error {
	if o.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be >= 1, got %d", ErrInvalidInput, o.MaxIterations)
	}
	if !(o.ToleranceM > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidInput, o.ToleranceM)
	}
	if !(o.RMSRelTol >= 0) {
		return fmt.Errorf("%w: rms relative tolerance must be >= 0, got %v", ErrInvalidInput, o.RMSRelTol)
	}
	if o.Jacobian == nil {
		return fmt.Errorf("%w: jacobian provider is nil", ErrInvalidInput)
	}
	return nil
}

// CalculateAnchorPosition fits the anchor position to the station ranges
// with Gauss-Newton least squares, starting from the planned drop position.
//
// ErrInvalidInput is returned for malformed scalars or positions and
// ErrIllConditionedGeometry when the stations cannot fix a position. When
// the iteration limit is reached first the estimate is still returned,
// with Converged false.
func CalculateAnchorPosition(stations []StationRecord, cfg SurveyConfig, opts ...Option) (AnchorEstimate, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return AnchorEstimate{}, err
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := cfg.Validate(); err != nil {
		return AnchorEstimate{}, err
	}
	if len(stations) < MinStations {
		return AnchorEstimate{}, fmt.Errorf("%w: need at least %d stations, got %d",
			ErrIllConditionedGeometry, MinStations, len(stations))
	}
	ranges, err := SlantRanges(stations, cfg)
	if err != nil {
		return AnchorEstimate{}, err
	}
	if err := checkGeometry(stations, cfg.DropLatitude, cfg.DropLongitude); err != nil {
		return AnchorEstimate{}, err
	}

	lat, lon := cfg.DropLatitude, cfg.DropLongitude
	residuals := Residuals(lat, lon, stations, ranges)
	rms := RMS(residuals)
	trace := []Iteration{{Iteration: 0, Latitude: lat, Longitude: lon, RMSErrorM: rms}}

	logger.Debug("anchor solve started",
		slog.Int("stations", len(stations)),
		slog.String("jacobian", o.Jacobian.Name()),
		slog.Float64("initial_rms_m", rms))

	status := MaxIterationsReached
	iterations := 0
	for iterations < o.MaxIterations {
		iterations++

		dLat, dLon, err := normalStep(o.Jacobian.Jacobian(lat, lon, stations), residuals)
		if err != nil {
			return AnchorEstimate{}, fmt.Errorf("iteration %d: %w", iterations, err)
		}
		if lat+dLat < -90 || lat+dLat > 90 {
			return AnchorEstimate{}, fmt.Errorf("%w: iteration %d diverged to latitude %.6f",
				ErrIllConditionedGeometry, iterations, lat+dLat)
		}

		// Halve the step until the fit does not get worse
		var (
			nextLat, nextLon float64
			nextResiduals    []float64
			nextRMS          float64
			accepted         bool
		)
		scale := 1.0
		for h := 0; h <= maxHalvings; h++ {
			nextLat, nextLon = lat+scale*dLat, WrapLongitude(lon+scale*dLon)
			nextResiduals = Residuals(nextLat, nextLon, stations, ranges)
			nextRMS = RMS(nextResiduals)
			if nextRMS <= rms {
				accepted = true
				break
			}
			scale /= 2
		}
		if !accepted {
			// No descent along the Gauss-Newton direction: stationary point
			logger.Debug("no improving step, stopping", slog.Int("iteration", iterations))
			trace = append(trace, Iteration{Iteration: iterations, Latitude: lat, Longitude: lon, RMSErrorM: rms})
			status = Converged
			break
		}

		step := Distance(lat, lon, nextLat, nextLon)
		prevRMS := rms
		lat, lon, residuals, rms = nextLat, nextLon, nextResiduals, nextRMS
		trace = append(trace, Iteration{
			Iteration: iterations,
			Latitude:  lat,
			Longitude: lon,
			RMSErrorM: rms,
			StepM:     step,
		})

		logger.Debug("gauss-newton iteration",
			slog.Int("iteration", iterations),
			slog.Float64("latitude", lat),
			slog.Float64("longitude", lon),
			slog.Float64("rms_m", rms),
			slog.Float64("step_m", step),
			slog.Float64("scale", scale))

		if step < o.ToleranceM || prevRMS-rms <= o.RMSRelTol*prevRMS {
			status = Converged
			break
		}
	}

	if status != Converged {
		logger.Warn("anchor solve did not converge",
			slog.Int("iterations", iterations),
			slog.Float64("rms_m", rms))
	}

	return AnchorEstimate{
		Latitude:   lat,
		Longitude:  lon,
		RMSErrorM:  rms,
		Iterations: iterations,
		Converged:  status == Converged,
		Status:     status,
		Ranges:     ranges,
		Residuals:  residuals,
		Trace:      trace,
	}, nil
}

// normalStep solves (JtJ) d = -Jt r for the 2x2 position update
func normalStep(jac [][2]float64, residuals []float64) (dLat, dLon float64, err error) {
	var a, b, c, g0, g1 float64
	for i, row := range jac {
		a += row[0] * row[0]
		b += row[0] * row[1]
		c += row[1] * row[1]
		g0 += row[0] * residuals[i]
		g1 += row[1] * residuals[i]
	}

	det := a*c - b*b
	if !(a > 0 && c > 0) || !(det > singularTol*a*c) {
		return 0, 0, fmt.Errorf("%w: singular normal matrix (det %.3g)", ErrIllConditionedGeometry, det)
	}

	dLat = -(c*g0 - b*g1) / det
	dLon = -(a*g1 - b*g0) / det
	if math.IsNaN(dLat) || math.IsNaN(dLon) || math.IsInf(dLat, 0) || math.IsInf(dLon, 0) {
		return 0, 0, fmt.Errorf("%w: non-finite position update", ErrIllConditionedGeometry)
	}
	return dLat, dLon, nil
}

// checkGeometry rejects coincident or colinear station layouts using the
// principal axes of the station scatter on the local tangent plane.
func checkGeometry(stations []StationRecord, refLat, refLon float64) error {
	n := float64(len(stations))
	xs := make([]float64, len(stations))
	ys := make([]float64, len(stations))
	var mx, my float64
	for i, st := range stations {
		xs[i], ys[i] = ToLocal(st.Latitude, st.Longitude, refLat, refLon)
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}

	half := (sxx + syy) / 2
	disc := math.Sqrt((sxx-syy)*(sxx-syy)/4 + sxy*sxy)
	major := half + disc
	minor := math.Max(half-disc, 0)

	if !(major > 0) {
		return fmt.Errorf("%w: all %d stations are coincident", ErrIllConditionedGeometry, len(stations))
	}
	if ratio := math.Sqrt(minor / major); ratio < minAxisRatio {
		return fmt.Errorf("%w: stations are colinear (axis ratio %.2g)", ErrIllConditionedGeometry, ratio)
	}
	return nil
}
