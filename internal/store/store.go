// Package store keeps a history of clinical analysis snapshots per
// consultation in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"consult-transcript-service/internal/models"
)

const defaultListLimit = 50

// ErrNoConsultation is returned when a snapshot has no consultation id.
var ErrNoConsultation = errors.New("analysis has no consultation id")

// Config configures the history store.
type Config struct {
	// Path is the database file. Empty keeps history in memory only.
	Path          string
	RetentionDays int
	// MaxPerConsultation bounds stored snapshots per consultation; 0 keeps all.
	MaxPerConsultation int
}

// Store wraps a SQLite-backed analysis history.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
	clock  func() time.Time
}

// Open initializes the store and applies retention once.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	logger := log.With().Str("component", "store").Logger()

	var dsn string
	if cfg.Path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(cfg.Path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.Path == "" {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, logger: logger, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if n, err := s.Prune(ctx); err != nil {
		logger.Warn().Err(err).Msg("History prune on start failed")
	} else if n > 0 {
		logger.Info().Int64("deleted", n).Msg("Pruned analysis history")
	}

	logger.Info().
		Str("path", cfg.Path).
		Bool("ephemeral", s.Ephemeral()).
		Int("retention_days", cfg.RetentionDays).
		Msg("Analysis history store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    consultation_id TEXT NOT NULL,
    diagnosis TEXT,
    model TEXT,
    payload BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_consultation_created ON analyses(consultation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Ephemeral reports whether history is lost on shutdown.
func (s *Store) Ephemeral() bool {
	return s.cfg.Path == ""
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append stores one analysis snapshot. Re-appending the same id replaces it.
func (s *Store) Append(ctx context.Context, r *models.ClinicalAnalysisResult) error {
	if r == nil {
		return errors.New("nil analysis")
	}
	if r.ConsultationID == "" {
		return ErrNoConsultation
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analyses(id, consultation_id, diagnosis, model, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, diagnosis=excluded.diagnosis`,
		r.ID, r.ConsultationID, r.Diagnosis.Primary, r.Model, payload, created.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	if s.cfg.MaxPerConsultation > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM analyses WHERE consultation_id = ? AND id NOT IN (
				SELECT id FROM analyses WHERE consultation_id = ?
				ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, r.ConsultationID, r.ConsultationID, s.cfg.MaxPerConsultation)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}
	return tx.Commit()
}

// List returns up to limit snapshots for a consultation, newest first.
func (s *Store) List(ctx context.Context, consultationID string, limit int) ([]models.ClinicalAnalysisResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM analyses WHERE consultation_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, consultationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ClinicalAnalysisResult{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r models.ClinicalAnalysisResult
		if err := json.Unmarshal(payload, &r); err != nil {
			s.logger.Warn().Err(err).Str("consultation_id", consultationID).Msg("Skipping unreadable snapshot")
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than the retention window and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
