package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/extractor"
	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// StatusWriter updates the job:<id> record
type StatusWriter interface {
	Update(ctx context.Context, jobID, status string, progress int) error
	Fail(ctx context.Context, jobID, message string) error
}

// Publisher hands enriched records to the AI worker
type Publisher interface {
	Publish(ctx context.Context, record *models.EnrichedRecord) (string, error)
}

// Archive stores terminal job outcomes
type Archive interface {
	RecordOutcome(ctx context.Context, outcome *models.JobOutcome) error
}

// VideoProcessor orchestrates the per-job pipeline:
// download, probe, keyframes, OCR, audio, transcription, publish.
type VideoProcessor struct {
	outputDir         string
	downloader        *utils.Downloader
	metadataExtractor *extractor.MetadataExtractor
	frameExtractor    *extractor.FrameExtractor
	audioExtractor    *extractor.AudioExtractor
	status            StatusWriter
	publisher         Publisher
	archive           Archive // optional
	stats             *WorkerStats
	logger            zerolog.Logger
}

// NewVideoProcessor wires the adapters around runner. archive may be nil.
func NewVideoProcessor(
	runner utils.CommandRunner,
	config *models.Config,
	status StatusWriter,
	publisher Publisher,
	archive Archive,
	logger zerolog.Logger,
) *VideoProcessor {
	ffmpeg := utils.NewFFmpegHelper(runner, logger)
	transcriber := utils.NewTranscriber(runner, config.TranscribeOutputDir, logger)
	downloader := utils.NewDownloader(runner, utils.DownloaderConfig{
		ProxyURL:    config.DownloadProxyURL,
		CookiesPath: config.DownloadCookiesPath,
	}, logger)

	return &VideoProcessor{
		outputDir:         config.OutputDir,
		downloader:        downloader,
		metadataExtractor: extractor.NewMetadataExtractor(ffmpeg, logger),
		frameExtractor:    extractor.NewFrameExtractor(ffmpeg, utils.NewOCREngine(config.OCREngine, runner), config.OCRConcurrency, logger),
		audioExtractor:    extractor.NewAudioExtractor(ffmpeg, transcriber, logger),
		status:            status,
		publisher:         publisher,
		archive:           archive,
		stats:             NewWorkerStats(),
		logger:            logger.With().Str("component", "processor").Logger(),
	}
}

// Stats returns the processor's counters
func (vp *VideoProcessor) Stats() *WorkerStats {
	return vp.stats
}

// Process runs one job end to end. It returns nil once the job reached a
// terminal outcome (published or failed); an error means a status write or
// the publish failed and the job should stay pending.
func (vp *VideoProcessor) Process(ctx context.Context, job *models.JobEnvelope) error {
	startTime := time.Now()
	log := vp.logger.With().Str("job_id", job.JobID).Logger()

	if err := vp.status.Update(ctx, job.JobID, models.StatusDownloading, models.ProgressDownloading); err != nil {
		return err
	}

	// Step 1: Download
	videoPath, err := vp.downloader.Download(ctx, job.URL, vp.outputDir, job.JobID)
	if err != nil {
		log.Error().Err(err).Msg("download failed")
		return vp.fail(ctx, job, startTime, fmt.Sprintf("Download failed: %v", err))
	}

	if err := vp.status.Update(ctx, job.JobID, models.StatusProcessingVideo, models.ProgressProcessingVideo); err != nil {
		return err
	}

	// Step 2: Probe
	info, err := vp.metadataExtractor.Extract(ctx, videoPath)
	if err != nil {
		log.Error().Err(err).Msg("probe failed")
		return vp.fail(ctx, job, startTime, fmt.Sprintf("Probe failed: %v", err))
	}

	if err := vp.status.Update(ctx, job.JobID, models.StatusExtractingOCR, models.ProgressExtractingOCR); err != nil {
		return err
	}

	// Step 3: Keyframes
	frames, err := vp.frameExtractor.ExtractKeyframes(ctx, videoPath, vp.outputDir, job.JobID)
	if err != nil {
		log.Warn().Err(err).Msg("keyframe extraction failed, continuing without frames")
		frames = []models.FrameData{}
	}

	// Step 4: OCR
	frames = vp.frameExtractor.RecognizeText(ctx, frames)

	if err := vp.status.Update(ctx, job.JobID, models.StatusTranscribingAudio, models.ProgressTranscribingAudio); err != nil {
		return err
	}

	// Step 5: Audio and transcription
	var audioPath *string
	transcription := ""
	if path, err := vp.audioExtractor.ExtractAudio(ctx, videoPath, vp.outputDir, job.JobID); err != nil {
		log.Warn().Err(err).Msg("audio extraction failed, continuing without audio")
	} else {
		audioPath = &path
		transcription = vp.audioExtractor.Transcribe(ctx, path)
	}

	record := models.NewEnrichedRecord(job.JobID, videoPath, *info, frames, audioPath, transcription)

	// Step 6: Publish
	if err := vp.status.Update(ctx, job.JobID, models.StatusAIProcessing, models.ProgressAIProcessing); err != nil {
		return err
	}

	entryID, err := vp.publisher.Publish(ctx, record)
	if err != nil {
		vp.stats.RecordPublishFailure()
		return fmt.Errorf("publish failed: %w", err)
	}

	elapsed := time.Since(startTime)
	degraded := len(record.Frames) == 0 || record.AudioPath == nil
	vp.stats.RecordCompleted(elapsed, degraded)

	log.Info().
		Str("entry_id", entryID).
		Int("frames", len(record.Frames)).
		Bool("has_audio", record.AudioPath != nil).
		Int("transcript_chars", len(record.Transcription)).
		Bool("degraded", degraded).
		Dur("elapsed", elapsed).
		Msg("job sent to AI processing")

	vp.recordOutcome(ctx, &models.JobOutcome{
		JobID:          job.JobID,
		URL:            job.URL,
		Status:         models.StatusAIProcessing,
		Record:         record,
		Degraded:       degraded,
		ProcessingTime: elapsed,
		CompletedAt:    time.Now(),
	})
	return nil
}

// fail marks the job failed. The job is terminal once the status write succeeds.
func (vp *VideoProcessor) fail(ctx context.Context, job *models.JobEnvelope, startTime time.Time, message string) error {
	if err := vp.status.Fail(ctx, job.JobID, message); err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	vp.stats.RecordFailed(elapsed)

	vp.recordOutcome(ctx, &models.JobOutcome{
		JobID:          job.JobID,
		URL:            job.URL,
		Status:         models.StatusFailed,
		Error:          message,
		ProcessingTime: elapsed,
		CompletedAt:    time.Now(),
	})
	return nil
}

func (vp *VideoProcessor) recordOutcome(ctx context.Context, outcome *models.JobOutcome) {
	if vp.archive == nil {
		return
	}
	if err := vp.archive.RecordOutcome(ctx, outcome); err != nil {
		vp.logger.Warn().Err(err).Str("job_id", outcome.JobID).Msg("failed to archive job outcome")
	}
}
