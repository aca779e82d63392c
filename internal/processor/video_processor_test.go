package processor_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/processor"
	"github.com/reeltorecipe/video-worker/internal/queue"
	"github.com/reeltorecipe/video-worker/internal/storage"
	"github.com/reeltorecipe/video-worker/internal/utils"
	"github.com/reeltorecipe/video-worker/internal/utils/toolstest"
)

// recordingStatus wraps the real store and remembers every transition
type recordingStatus struct {
	*storage.StatusStore
	mu       sync.Mutex
	progress []int
	statuses []string
}

func (r *recordingStatus) Update(ctx context.Context, jobID, status string, progress int) error {
	r.mu.Lock()
	r.progress = append(r.progress, progress)
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.StatusStore.Update(ctx, jobID, status, progress)
}

func (r *recordingStatus) Fail(ctx context.Context, jobID, message string) error {
	r.mu.Lock()
	r.progress = append(r.progress, models.ProgressFailed)
	r.statuses = append(r.statuses, models.StatusFailed)
	r.mu.Unlock()
	return r.StatusStore.Fail(ctx, jobID, message)
}

type recordingArchive struct {
	outcomes []*models.JobOutcome
	err      error
}

func (a *recordingArchive) RecordOutcome(ctx context.Context, outcome *models.JobOutcome) error {
	a.outcomes = append(a.outcomes, outcome)
	return a.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, record *models.EnrichedRecord) (string, error) {
	return "", errors.New("READONLY You can't write against a read only replica")
}

type failingStatus struct{}

func (failingStatus) Update(ctx context.Context, jobID, status string, progress int) error {
	return errors.New("connection refused")
}

func (failingStatus) Fail(ctx context.Context, jobID, message string) error {
	return errors.New("connection refused")
}

type harness struct {
	client  *redis.Client
	mr      *miniredis.Miniredis
	status  *recordingStatus
	archive *recordingArchive
	runner  *toolstest.FakeRunner
	config  *models.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &harness{
		client:  client,
		mr:      mr,
		status:  &recordingStatus{StatusStore: storage.NewStatusStore(client, zerolog.Nop())},
		archive: &recordingArchive{},
		runner:  healthyTools(),
		config:  &models.Config{OutputDir: t.TempDir(), OCRConcurrency: 2, OCREngine: utils.OCREngineCLI},
	}
}

func healthyTools() *toolstest.FakeRunner {
	return toolstest.NewFakeRunner().
		Handle("yt-dlp", toolstest.YTDLP("mp4")).
		Handle("ffprobe", toolstest.Stdout(toolstest.FFprobeJSON)).
		Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{
			SceneFrames:   []int{5, 1},
			RegularFrames: []int{2, 4},
		})).
		Handle("whisper", toolstest.Whisper("Whisk two eggs.")).
		Handle("tesseract", toolstest.Tesseract(map[string]string{
			"frame_0001.jpg": "200g flour",
		}))
}

func (h *harness) submit(t *testing.T, jobID string) {
	t.Helper()
	if _, err := h.status.Create(context.Background(), jobID, "https://example/v.mp4"); err != nil {
		t.Fatalf("create status: %v", err)
	}
}

func (h *harness) processor() *processor.VideoProcessor {
	return processor.NewVideoProcessor(h.runner, h.config, h.status, queue.NewStreamPublisher(h.client), h.archive, zerolog.Nop())
}

func (h *harness) published(t *testing.T) []models.EnrichedRecord {
	t.Helper()
	entries, err := h.client.XRange(context.Background(), models.AIQueueStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	var records []models.EnrichedRecord
	for _, entry := range entries {
		var record models.EnrichedRecord
		if err := json.Unmarshal([]byte(entry.Values["video_data"].(string)), &record); err != nil {
			t.Fatalf("video_data: %v", err)
		}
		if entry.Values["job_id"] != record.JobID {
			t.Fatalf("job_id field %v does not match record %s", entry.Values["job_id"], record.JobID)
		}
		records = append(records, record)
	}
	return records
}

func (h *harness) finalStatus(t *testing.T, jobID string) *models.JobStatus {
	t.Helper()
	status, err := h.status.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return status
}

func run(t *testing.T, h *harness, jobID string) {
	t.Helper()
	err := h.processor().Process(context.Background(), &models.JobEnvelope{JobID: jobID, URL: "https://example/v.mp4"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
}

func TestProcessHappyPath(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "J1")

	run(t, h, "J1")

	status := h.finalStatus(t, "J1")
	if status.Status != models.StatusAIProcessing || status.Progress != 80 {
		t.Fatalf("unexpected final status %+v", status)
	}
	if diff := cmp.Diff([]int{10, 25, 40, 60, 80}, h.status.progress); diff != "" {
		t.Fatalf("progress sequence (-want +got):\n%s", diff)
	}

	records := h.published(t)
	if len(records) != 1 {
		t.Fatalf("expected one published record, got %d", len(records))
	}
	record := records[0]
	if record.DurationSeconds <= 0 || record.Resolution.Width != 1920 || record.Resolution.Height != 1080 {
		t.Fatalf("unexpected video metadata %+v", record)
	}
	if len(record.Frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(record.Frames))
	}
	if !slices.IsSortedFunc(record.Frames, func(a, b models.FrameData) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	}) {
		t.Fatalf("frames not sorted: %+v", record.Frames)
	}
	if !record.Frames[0].HasText() || *record.Frames[0].OCRText != "200g flour" {
		t.Fatalf("expected OCR text on first keyframe, got %+v", record.Frames[0])
	}
	if record.AudioPath == nil || record.Transcription != "Whisk two eggs." {
		t.Fatalf("unexpected audio fields %v %q", record.AudioPath, record.Transcription)
	}

	if len(h.archive.outcomes) != 1 || h.archive.outcomes[0].Status != models.StatusAIProcessing || h.archive.outcomes[0].Degraded {
		t.Fatalf("unexpected archive outcomes %+v", h.archive.outcomes)
	}
}

func TestProcessKeyframesRunUnderExtractingOCR(t *testing.T) {
	h := newHarness(t)
	frames := toolstest.FFmpeg(toolstest.FFmpegScript{SceneFrames: []int{1}})
	var seen []string
	h.runner.Handle("ffmpeg", func(args []string) (*utils.CommandResult, error) {
		h.status.mu.Lock()
		seen = append(seen, h.status.statuses[len(h.status.statuses)-1])
		h.status.mu.Unlock()
		return frames(args)
	})
	h.submit(t, "J1")

	run(t, h, "J1")

	if len(seen) == 0 || seen[0] != models.StatusExtractingOCR {
		t.Fatalf("keyframe pass ran under %v, want %q", seen, models.StatusExtractingOCR)
	}
}

func TestProcessSilentAudio(t *testing.T) {
	h := newHarness(t)
	h.runner.
		Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{SceneFrames: []int{1}, AudioFails: true})).
		Handle("whisper", toolstest.Whisper(""))
	h.submit(t, "J1")

	run(t, h, "J1")

	record := h.published(t)[0]
	if record.AudioPath == nil || record.Transcription != "" {
		t.Fatalf("expected audio path with empty transcript, got %v %q", record.AudioPath, record.Transcription)
	}
	if status := h.finalStatus(t, "J1"); status.Progress != 80 {
		t.Fatalf("expected progress 80, got %+v", status)
	}
}

func TestProcessTranscriberAbsent(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle("whisper", nil)
	h.submit(t, "J1")

	run(t, h, "J1")

	if record := h.published(t)[0]; record.Transcription != "" || record.AudioPath == nil {
		t.Fatalf("unexpected audio fields %v %q", record.AudioPath, record.Transcription)
	}
	status := h.finalStatus(t, "J1")
	if status.Progress != 80 || status.ErrorMessage != "" {
		t.Fatalf("unexpected final status %+v", status)
	}
}

func TestProcessDownloadFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle("yt-dlp", toolstest.Fail(1, "ERROR: Video unavailable"))
	h.submit(t, "J1")

	run(t, h, "J1")

	status := h.finalStatus(t, "J1")
	if status.Status != models.StatusFailed || status.Progress != 0 {
		t.Fatalf("unexpected final status %+v", status)
	}
	if !strings.HasPrefix(status.ErrorMessage, "Download failed:") || !strings.Contains(status.ErrorMessage, "Video unavailable") {
		t.Fatalf("unexpected error message %q", status.ErrorMessage)
	}
	if records := h.published(t); len(records) != 0 {
		t.Fatalf("nothing should be published, got %d", len(records))
	}
	if len(h.runner.CallsTo("ffprobe")) != 0 {
		t.Fatalf("pipeline should stop after the download")
	}
	if len(h.archive.outcomes) != 1 || h.archive.outcomes[0].Error != status.ErrorMessage {
		t.Fatalf("unexpected archive outcomes %+v", h.archive.outcomes)
	}
}

func TestProcessProbeFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle("ffprobe", toolstest.Fail(1, "moov atom not found"))
	h.submit(t, "J1")

	run(t, h, "J1")

	status := h.finalStatus(t, "J1")
	if status.Status != models.StatusFailed || !strings.HasPrefix(status.ErrorMessage, "Probe failed:") {
		t.Fatalf("unexpected final status %+v", status)
	}
	if diff := cmp.Diff([]int{10, 25, 0}, h.status.progress); diff != "" {
		t.Fatalf("progress sequence (-want +got):\n%s", diff)
	}
	if records := h.published(t); len(records) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestProcessZeroFrames(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{SceneFails: true, RegularFails: true}))
	h.submit(t, "J1")

	run(t, h, "J1")

	entries, err := h.client.XRange(context.Background(), models.AIQueueStream, "-", "+").Result()
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %d (%v)", len(entries), err)
	}
	if !strings.Contains(entries[0].Values["video_data"].(string), `"frames":[]`) {
		t.Fatalf("frames should serialize as an empty list: %s", entries[0].Values["video_data"])
	}
	if len(h.runner.CallsTo("tesseract")) != 0 {
		t.Fatalf("OCR should not run without frames")
	}
	if status := h.finalStatus(t, "J1"); status.Progress != 80 {
		t.Fatalf("expected progress 80, got %+v", status)
	}
	if !h.archive.outcomes[0].Degraded {
		t.Fatalf("job without frames should be recorded as degraded")
	}
}

func TestProcessAudioMissing(t *testing.T) {
	h := newHarness(t)
	h.runner.Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{SceneFrames: []int{1}, AudioNoFile: true}))
	h.submit(t, "J1")

	run(t, h, "J1")

	record := h.published(t)[0]
	if record.AudioPath != nil || record.Transcription != "" {
		t.Fatalf("expected null audio path, got %v %q", record.AudioPath, record.Transcription)
	}
	if len(h.runner.CallsTo("whisper")) != 0 {
		t.Fatalf("transcription should be skipped without audio")
	}
}

func TestProcessMissingStatusRecord(t *testing.T) {
	h := newHarness(t)

	run(t, h, "J404")

	if h.mr.Exists(models.JobKey("J404")) {
		t.Fatalf("status updates must not create the record")
	}
	if records := h.published(t); len(records) != 1 || records[0].JobID != "J404" {
		t.Fatalf("expected the record to be published, got %+v", records)
	}
}

func TestProcessPublishFailureLeavesJobPending(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "J1")
	vp := processor.NewVideoProcessor(h.runner, h.config, h.status, failingPublisher{}, h.archive, zerolog.Nop())

	err := vp.Process(context.Background(), &models.JobEnvelope{JobID: "J1", URL: "https://example/v.mp4"})
	if err == nil {
		t.Fatalf("expected publish error")
	}

	status := h.finalStatus(t, "J1")
	if status.Status != models.StatusAIProcessing || status.ErrorMessage != "" {
		t.Fatalf("status should stay at ai_processing, got %+v", status)
	}
	if len(h.archive.outcomes) != 0 {
		t.Fatalf("nothing should be archived for a pending job")
	}
	if vp.Stats().Snapshot().PublishFailures != 1 {
		t.Fatalf("expected a publish failure to be counted")
	}
}

func TestProcessStatusWriteFailureSurfaces(t *testing.T) {
	h := newHarness(t)
	vp := processor.NewVideoProcessor(h.runner, h.config, failingStatus{}, queue.NewStreamPublisher(h.client), nil, zerolog.Nop())

	err := vp.Process(context.Background(), &models.JobEnvelope{JobID: "J1", URL: "https://example/v.mp4"})
	if err == nil {
		t.Fatalf("expected status write error")
	}
	if len(h.runner.CallsTo("yt-dlp")) != 0 {
		t.Fatalf("pipeline should not start when the status write fails")
	}
}

func TestProcessArchiveFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.archive.err = errors.New("pq: connection refused")
	h.submit(t, "J1")

	run(t, h, "J1")

	if records := h.published(t); len(records) != 1 {
		t.Fatalf("expected one published record")
	}
}

func TestProcessStats(t *testing.T) {
	h := newHarness(t)
	vp := h.processor()
	ctx := context.Background()

	if err := vp.Process(ctx, &models.JobEnvelope{JobID: "J1", URL: "https://example/v.mp4"}); err != nil {
		t.Fatal(err)
	}
	h.runner.Handle("yt-dlp", toolstest.Fail(1, "ERROR"))
	if err := vp.Process(ctx, &models.JobEnvelope{JobID: "J2", URL: "https://example/v.mp4"}); err != nil {
		t.Fatal(err)
	}

	stats := vp.Stats().Snapshot()
	if stats.JobsCompleted != 1 || stats.JobsFailed != 1 || stats.JobsDegraded != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
