package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reeltorecipe/video-worker/internal/models"
)

// StreamPublisher appends enriched records to the AI processing stream
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher creates a publisher for queue:ai_processing
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: models.AIQueueStream,
	}
}

// Publish appends {job_id, video_data} and returns the entry ID
func (p *StreamPublisher) Publish(ctx context.Context, record *models.EnrichedRecord) (string, error) {
	videoData, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: []any{
			"job_id", record.JobID,
			"video_data", string(videoData),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", p.stream, err)
	}
	return id, nil
}
