package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/storage"
)

// Submitter enqueues jobs the way the API service does
type Submitter struct {
	client *redis.Client
	status *storage.StatusStore
}

// NewSubmitter creates a submitter
func NewSubmitter(client *redis.Client, status *storage.StatusStore) *Submitter {
	return &Submitter{client: client, status: status}
}

// Submit writes a pending job:<id> record and appends the job to
// queue:video_processing. An empty jobID gets a fresh UUID.
func (s *Submitter) Submit(ctx context.Context, url, jobID string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	if jobID == "" {
		jobID = uuid.NewString()
	}

	if _, err := s.status.Create(ctx, jobID, url); err != nil {
		return "", err
	}

	data, err := json.Marshal(models.JobEnvelope{JobID: jobID, URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: models.VideoQueueStream,
		Values: []any{
			"job_id", jobID,
			"data", string(data),
		},
	}).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	return jobID, nil
}
