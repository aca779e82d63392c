package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/reeltorecipe/video-worker/internal/models"
)

// StorageManager archives terminal job outcomes in PostgreSQL
type StorageManager struct {
	db *sql.DB
}

// NewStorageManager connects to PostgreSQL and creates the archive schema
func NewStorageManager(ctx context.Context, postgresURL string) (*StorageManager, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	sm := &StorageManager{db: db}
	if err := sm.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sm, nil
}

// initSchema creates tables and indexes if they don't exist
func (sm *StorageManager) initSchema(ctx context.Context) error {
	tableSchema := `
	CREATE SCHEMA IF NOT EXISTS videoworker;

	-- One row per job, rewritten on every terminal outcome
	CREATE TABLE IF NOT EXISTS videoworker.extractions (
		job_id VARCHAR(255) PRIMARY KEY,
		url TEXT NOT NULL,
		status VARCHAR(50) NOT NULL,
		result JSONB,
		error TEXT,
		degraded BOOLEAN NOT NULL DEFAULT FALSE,
		processing_time_ms BIGINT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP
	);

	-- OCR text per frame
	CREATE TABLE IF NOT EXISTS videoworker.frame_texts (
		job_id VARCHAR(255) NOT NULL REFERENCES videoworker.extractions(job_id) ON DELETE CASCADE,
		timestamp FLOAT NOT NULL,
		frame_path TEXT NOT NULL,
		is_keyframe BOOLEAN NOT NULL,
		text TEXT NOT NULL,
		PRIMARY KEY (job_id, frame_path)
	);
	`

	if _, err := sm.db.ExecContext(ctx, tableSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	indexStatements := []string{
		`CREATE INDEX IF NOT EXISTS idx_extractions_status ON videoworker.extractions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_extractions_completed_at ON videoworker.extractions(completed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_frame_texts_job_id ON videoworker.frame_texts(job_id)`,
	}

	for _, stmt := range indexStatements {
		if _, err := sm.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w (statement: %s)", err, stmt)
		}
	}

	return nil
}

// extractionRow is the archive row for one outcome
type extractionRow struct {
	JobID            string
	URL              string
	Status           string
	Result           []byte // nil stores SQL NULL
	Error            sql.NullString
	Degraded         bool
	ProcessingTimeMs int64
	CompletedAt      time.Time
	FrameTexts       []models.FrameData
}

func newExtractionRow(outcome *models.JobOutcome) (*extractionRow, error) {
	row := &extractionRow{
		JobID:            outcome.JobID,
		URL:              outcome.URL,
		Status:           outcome.Status,
		Error:            sql.NullString{String: outcome.Error, Valid: outcome.Error != ""},
		Degraded:         outcome.Degraded,
		ProcessingTimeMs: outcome.ProcessingTime.Milliseconds(),
		CompletedAt:      outcome.CompletedAt.UTC(),
	}

	if outcome.Record != nil {
		result, err := json.Marshal(outcome.Record)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		row.Result = result

		for _, frame := range outcome.Record.Frames {
			if frame.HasText() {
				row.FrameTexts = append(row.FrameTexts, frame)
			}
		}
	}

	return row, nil
}

// RecordOutcome upserts the job's archive row and replaces its frame texts
func (sm *StorageManager) RecordOutcome(ctx context.Context, outcome *models.JobOutcome) error {
	row, err := newExtractionRow(outcome)
	if err != nil {
		return err
	}

	tx, err := sm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO videoworker.extractions (job_id, url, status, result, error, degraded, processing_time_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			url = EXCLUDED.url,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			degraded = EXCLUDED.degraded,
			processing_time_ms = EXCLUDED.processing_time_ms,
			completed_at = EXCLUDED.completed_at
	`

	_, err = tx.ExecContext(ctx, query,
		row.JobID,
		row.URL,
		row.Status,
		row.Result,
		row.Error,
		row.Degraded,
		row.ProcessingTimeMs,
		row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert extraction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM videoworker.frame_texts WHERE job_id = $1`, row.JobID); err != nil {
		return fmt.Errorf("failed to clear frame texts: %w", err)
	}

	for _, frame := range row.FrameTexts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO videoworker.frame_texts (job_id, timestamp, frame_path, is_keyframe, text)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (job_id, frame_path) DO NOTHING
		`, row.JobID, frame.Timestamp, frame.FramePath, frame.IsKeyframe, *frame.OCRText)
		if err != nil {
			return fmt.Errorf("failed to store frame text: %w", err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (sm *StorageManager) Close() error {
	return sm.db.Close()
}
