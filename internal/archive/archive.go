// Package archive stores solved surveys in PostgreSQL
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"anchor-survey/internal/processor"
)

const schema = `
CREATE TABLE IF NOT EXISTS anchor_surveys (
	survey_id      TEXT PRIMARY KEY,
	solved_at      TIMESTAMPTZ NOT NULL,
	drop_latitude  DOUBLE PRECISION NOT NULL,
	drop_longitude DOUBLE PRECISION NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	rms_m          DOUBLE PRECISION NOT NULL,
	iterations     INTEGER NOT NULL,
	converged      BOOLEAN NOT NULL,
	fallback_m     DOUBLE PRECISION NOT NULL,
	bearing_deg    DOUBLE PRECISION NOT NULL,
	stations       JSONB NOT NULL
);`

const upsert = `
INSERT INTO anchor_surveys (
	survey_id, solved_at, drop_latitude, drop_longitude, latitude, longitude,
	rms_m, iterations, converged, fallback_m, bearing_deg, stations
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (survey_id) DO UPDATE SET
	solved_at      = EXCLUDED.solved_at,
	drop_latitude  = EXCLUDED.drop_latitude,
	drop_longitude = EXCLUDED.drop_longitude,
	latitude       = EXCLUDED.latitude,
	longitude      = EXCLUDED.longitude,
	rms_m          = EXCLUDED.rms_m,
	iterations     = EXCLUDED.iterations,
	converged      = EXCLUDED.converged,
	fallback_m     = EXCLUDED.fallback_m,
	bearing_deg    = EXCLUDED.bearing_deg,
	stations       = EXCLUDED.stations;`

// execer is the subset of *sql.DB the store needs
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store writes survey results to the anchor_surveys table
type Store struct {
	db     execer
	closer func() error
	logger *slog.Logger
}

// Open connects to PostgreSQL through the pgx driver
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("archive: DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open postgres database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: verify postgres connection: %w", err)
	}

	s := newStore(db, logger)
	s.closer = db.Close
	return s, nil
}

func newStore(db execer, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger.With(slog.String("component", "archive"))}
}

// EnsureSchema creates the archive table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: create anchor_surveys table: %w", err)
	}
	return nil
}

// Save inserts or replaces the archived result for r.SurveyID
func (s *Store) Save(ctx context.Context, r *processor.Result) error {
	if r == nil || r.SurveyID == "" {
		return errors.New("archive: result must have a survey ID")
	}

	stations, err := json.Marshal(r.Stations)
	if err != nil {
		return fmt.Errorf("archive: encode stations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, upsert,
		r.SurveyID,
		r.ProcessingTime,
		r.Drop.Latitude,
		r.Drop.Longitude,
		r.Anchor.Latitude,
		r.Anchor.Longitude,
		r.RMSErrorM,
		r.Iterations,
		r.Converged,
		r.Fallback.DistanceM,
		r.Fallback.BearingDeg,
		string(stations),
	)
	if err != nil {
		return fmt.Errorf("archive: save survey %s: %w", r.SurveyID, err)
	}

	s.logger.Info("survey archived", slog.String("survey_id", r.SurveyID))
	return nil
}

// SaveAll archives each result, stopping at the first failure
func (s *Store) SaveAll(ctx context.Context, results []*processor.Result) error {
	for _, r := range results {
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database connection
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
