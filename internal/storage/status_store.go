package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
)

// ErrJobNotFound is returned by Get when job:<id> does not exist
var ErrJobNotFound = errors.New("job not found")

// ErrMalformedStatus is returned when job:<id> holds JSON that is not an object
var ErrMalformedStatus = errors.New("status record is not a JSON object")

// StatusStore reads and writes the job:<id> status records.
// Writes are read-modify-write on the whole JSON document so fields owned by
// other services survive.
type StatusStore struct {
	client *redis.Client
	logger zerolog.Logger
	now    func() time.Time
}

// NewStatusStore creates a status store on an existing Redis client
func NewStatusStore(client *redis.Client, logger zerolog.Logger) *StatusStore {
	return &StatusStore{
		client: client,
		logger: logger.With().Str("component", "status").Logger(),
		now:    time.Now,
	}
}

// Get returns the typed view of a job's status record
func (s *StatusStore) Get(ctx context.Context, jobID string) (*models.JobStatus, error) {
	raw, err := s.client.Get(ctx, models.JobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status for job %s: %w", jobID, err)
	}

	var status *models.JobStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("invalid status record for job %s: %w", jobID, err)
	}
	if status == nil {
		return nil, fmt.Errorf("invalid status record for job %s: %w", jobID, ErrMalformedStatus)
	}
	return status, nil
}

// Create writes a fresh pending record for a submitted job
func (s *StatusStore) Create(ctx context.Context, jobID, url string) (*models.JobStatus, error) {
	now := s.timestamp()
	status := &models.JobStatus{
		JobID:     jobID,
		URL:       url,
		Status:    models.StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.client.Set(ctx, models.JobKey(jobID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to write status for job %s: %w", jobID, err)
	}
	return status, nil
}

// Update sets status, progress and updated_at. A missing record is left absent.
func (s *StatusStore) Update(ctx context.Context, jobID, status string, progress int) error {
	return s.merge(ctx, jobID, map[string]any{
		"status":   status,
		"progress": progress,
	})
}

// Fail marks the job failed with progress 0 and records the error message
func (s *StatusStore) Fail(ctx context.Context, jobID, message string) error {
	return s.merge(ctx, jobID, map[string]any{
		"status":        models.StatusFailed,
		"progress":      models.ProgressFailed,
		"error_message": message,
	})
}

func (s *StatusStore) merge(ctx context.Context, jobID string, fields map[string]any) error {
	key := models.JobKey(jobID)

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.logger.Debug().Str("job_id", jobID).Msg("no status record, skipping update")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read status for job %s: %w", jobID, err)
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("invalid status record for job %s: %w", jobID, err)
	}
	if record == nil {
		return fmt.Errorf("invalid status record for job %s: %w", jobID, ErrMalformedStatus)
	}

	for k, v := range fields {
		record[k] = v
	}
	record["updated_at"] = s.timestamp()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.client.Set(ctx, key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to write status for job %s: %w", jobID, err)
	}

	s.logger.Debug().Str("job_id", jobID).Interface("status", fields["status"]).Msg("status updated")
	return nil
}

func (s *StatusStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
