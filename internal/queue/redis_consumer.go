package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
)

// ErrNoJob is returned by Poll when the blocking read timed out empty
var ErrNoJob = errors.New("no job available")

// Handler runs one job. A nil error means the job reached a terminal outcome
// (completed or failed) and the entry can be acknowledged; any error leaves it pending.
type Handler interface {
	Process(ctx context.Context, job *models.JobEnvelope) error
}

// Delivery is one entry read from the input stream
type Delivery struct {
	MessageID string
	Values    map[string]any
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	Stream           string
	DeadLetterStream string
	Group            string
	Consumer         string
	BlockTimeout     time.Duration // Default: 5s
	IdleDelay        time.Duration // Default: 1s
	ErrorDelay       time.Duration // Default: 5s
}

// RedisConsumer reads jobs from a Redis stream through a consumer group,
// one entry at a time
type RedisConsumer struct {
	client  *redis.Client
	config  RedisConsumerConfig
	handler Handler
	logger  zerolog.Logger
}

// NewRedisConsumer creates a new stream consumer
func NewRedisConsumer(client *redis.Client, config RedisConsumerConfig, handler Handler, logger zerolog.Logger) *RedisConsumer {
	// Set defaults
	if config.Stream == "" {
		config.Stream = models.VideoQueueStream
	}
	if config.DeadLetterStream == "" {
		config.DeadLetterStream = models.DeadLetterStream
	}
	if config.BlockTimeout == 0 {
		config.BlockTimeout = 5 * time.Second
	}
	if config.IdleDelay == 0 {
		config.IdleDelay = time.Second
	}
	if config.ErrorDelay == 0 {
		config.ErrorDelay = 5 * time.Second
	}

	return &RedisConsumer{
		client:  client,
		config:  config,
		handler: handler,
		logger: logger.With().
			Str("component", "consumer").
			Str("stream", config.Stream).
			Str("consumer", config.Consumer).
			Logger(),
	}
}

// Setup creates the consumer group at the stream tail, creating the stream if needed.
// An existing group is not an error.
func (rc *RedisConsumer) Setup(ctx context.Context) error {
	err := rc.client.XGroupCreateMkStream(ctx, rc.config.Stream, rc.config.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", rc.config.Group, err)
	}
	rc.logger.Info().Str("group", rc.config.Group).Msg("consumer group ready")
	return nil
}

// Read blocks for up to BlockTimeout waiting for one new entry
func (rc *RedisConsumer) Read(ctx context.Context) (*Delivery, error) {
	result, err := rc.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    rc.config.Group,
		Consumer: rc.config.Consumer,
		Streams:  []string{rc.config.Stream, ">"},
		Count:    1,
		Block:    rc.config.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJob
		}
		return nil, fmt.Errorf("XREADGROUP failed: %w", err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, ErrNoJob
	}
	message := result[0].Messages[0]
	return &Delivery{MessageID: message.ID, Values: message.Values}, nil
}

// Ack acknowledges an entry for the group
func (rc *RedisConsumer) Ack(ctx context.Context, messageID string) error {
	if err := rc.client.XAck(ctx, rc.config.Stream, rc.config.Group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", messageID, err)
	}
	return nil
}

// DeadLetter copies an unusable entry to the dead-letter stream with the reason, then acks it
func (rc *RedisConsumer) DeadLetter(ctx context.Context, delivery *Delivery, cause error) error {
	values := make(map[string]any, len(delivery.Values)+2)
	for k, v := range delivery.Values {
		values[k] = v
	}
	values["error"] = cause.Error()
	values["message_id"] = delivery.MessageID

	if err := rc.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rc.config.DeadLetterStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter %s: %w", delivery.MessageID, err)
	}
	return rc.Ack(ctx, delivery.MessageID)
}

// Poll reads at most one entry and runs it through the handler.
// It returns ErrNoJob when nothing arrived within the block timeout.
func (rc *RedisConsumer) Poll(ctx context.Context) error {
	delivery, err := rc.Read(ctx)
	if err != nil {
		return err
	}

	// The job runs to completion even when shutdown starts mid-flight
	jobCtx := context.WithoutCancel(ctx)
	log := rc.logger.With().Str("message_id", delivery.MessageID).Logger()

	job, err := ParseEnvelope(delivery.Values)
	if err != nil {
		log.Error().Err(err).Interface("values", delivery.Values).Msg("unusable job envelope, moving to dead-letter stream")
		return rc.DeadLetter(jobCtx, delivery, err)
	}

	log.Info().Str("job_id", job.JobID).Str("url", job.URL).Msg("processing job")

	if err := rc.handler.Process(jobCtx, job); err != nil {
		return fmt.Errorf("job %s left pending: %w", job.JobID, err)
	}

	if err := rc.Ack(jobCtx, delivery.MessageID); err != nil {
		return err
	}
	log.Debug().Str("job_id", job.JobID).Msg("acknowledged")
	return nil
}

// Run polls until ctx is cancelled
func (rc *RedisConsumer) Run(ctx context.Context) error {
	rc.logger.Info().Str("group", rc.config.Group).Msg("waiting for jobs")

	for {
		if ctx.Err() != nil {
			rc.logger.Info().Msg("consumer stopping")
			return nil
		}

		err := rc.Poll(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoJob):
			sleep(ctx, rc.config.IdleDelay)
		case ctx.Err() != nil:
			// Read interrupted by shutdown
		default:
			rc.logger.Error().Err(err).Dur("backoff", rc.config.ErrorDelay).Msg("poll failed")
			sleep(ctx, rc.config.ErrorDelay)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
