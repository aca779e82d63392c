package processor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StatsSnapshot is a point-in-time copy of the worker counters
type StatsSnapshot struct {
	JobsCompleted     int64
	JobsDegraded      int64
	JobsFailed        int64
	PublishFailures   int64
	AverageLatencyMs  float64
	TotalProcessingMs int64
	LastProcessedAt   time.Time
}

// WorkerStats tracks processing statistics
type WorkerStats struct {
	mu    sync.RWMutex
	stats StatsSnapshot
}

// NewWorkerStats creates zeroed counters
func NewWorkerStats() *WorkerStats {
	return &WorkerStats{
		stats: StatsSnapshot{
			LastProcessedAt: time.Now(),
		},
	}
}

// RecordCompleted counts a published job
func (ws *WorkerStats) RecordCompleted(elapsed time.Duration, degraded bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.stats.JobsCompleted++
	if degraded {
		ws.stats.JobsDegraded++
	}
	ws.observe(elapsed)
}

// RecordFailed counts a terminally failed job
func (ws *WorkerStats) RecordFailed(elapsed time.Duration) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.stats.JobsFailed++
	ws.observe(elapsed)
}

// RecordPublishFailure counts a job left pending because the publish failed
func (ws *WorkerStats) RecordPublishFailure() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.stats.PublishFailures++
}

// observe must be called with mu held
func (ws *WorkerStats) observe(elapsed time.Duration) {
	ws.stats.TotalProcessingMs += elapsed.Milliseconds()
	finished := ws.stats.JobsCompleted + ws.stats.JobsFailed
	ws.stats.AverageLatencyMs = float64(ws.stats.TotalProcessingMs) / float64(finished)
	ws.stats.LastProcessedAt = time.Now()
}

// Snapshot returns current processing statistics
func (ws *WorkerStats) Snapshot() StatsSnapshot {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.stats
}

// RunLogger logs the counters every interval until ctx is done
func (ws *WorkerStats) RunLogger(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.Log(logger)
		}
	}
}

// Log writes one stats line
func (ws *WorkerStats) Log(logger zerolog.Logger) {
	s := ws.Snapshot()
	logger.Info().
		Int64("completed", s.JobsCompleted).
		Int64("degraded", s.JobsDegraded).
		Int64("failed", s.JobsFailed).
		Int64("publish_failures", s.PublishFailures).
		Float64("avg_latency_ms", s.AverageLatencyMs).
		Time("last_processed_at", s.LastProcessedAt).
		Msg("worker stats")
}
