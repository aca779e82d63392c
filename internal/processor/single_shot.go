package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/extractor"
	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// SingleShot runs the pipeline for one URL without a broker and writes
// <job_id>_result.json. Unlike the worker, only transcription may degrade.
type SingleShot struct {
	downloader        *utils.Downloader
	metadataExtractor *extractor.MetadataExtractor
	frameExtractor    *extractor.FrameExtractor
	audioExtractor    *extractor.AudioExtractor
	logger            zerolog.Logger
}

// NewSingleShot wires the adapters around runner
func NewSingleShot(runner utils.CommandRunner, config *models.Config, logger zerolog.Logger) *SingleShot {
	ffmpeg := utils.NewFFmpegHelper(runner, logger)
	return &SingleShot{
		downloader: utils.NewDownloader(runner, utils.DownloaderConfig{
			ProxyURL:    config.DownloadProxyURL,
			CookiesPath: config.DownloadCookiesPath,
		}, logger),
		metadataExtractor: extractor.NewMetadataExtractor(ffmpeg, logger),
		frameExtractor:    extractor.NewFrameExtractor(ffmpeg, utils.NewOCREngine(config.OCREngine, runner), config.OCRConcurrency, logger),
		audioExtractor:    extractor.NewAudioExtractor(ffmpeg, utils.NewTranscriber(runner, config.TranscribeOutputDir, logger), logger),
		logger:            logger.With().Str("component", "single-shot").Logger(),
	}
}

// ProcessURL runs every stage for url under a fresh job ID and returns the
// result together with the path of the written JSON file
func (ss *SingleShot) ProcessURL(ctx context.Context, url, outputDir string) (*models.SingleShotResult, string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create output directory: %w", err)
	}

	jobID := uuid.NewString()
	log := ss.logger.With().Str("job_id", jobID).Logger()
	log.Info().Str("url", url).Msg("processing video")

	videoPath, err := ss.downloader.Download(ctx, url, outputDir, jobID)
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}

	info, err := ss.metadataExtractor.Extract(ctx, videoPath)
	if err != nil {
		return nil, "", fmt.Errorf("probe failed: %w", err)
	}

	frames, err := ss.frameExtractor.ExtractKeyframes(ctx, videoPath, outputDir, jobID)
	if err != nil {
		return nil, "", err
	}
	frames = ss.frameExtractor.RecognizeText(ctx, frames)

	audioPath, err := ss.audioExtractor.ExtractAudio(ctx, videoPath, outputDir, jobID)
	if err != nil {
		return nil, "", fmt.Errorf("audio extraction failed: %w", err)
	}
	transcription := ss.audioExtractor.Transcribe(ctx, audioPath)

	result := &models.SingleShotResult{
		JobID:         jobID,
		VideoPath:     videoPath,
		VideoInfo:     *info,
		Frames:        frames,
		AudioPath:     audioPath,
		Transcription: transcription,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal result: %w", err)
	}

	resultPath := filepath.Join(outputDir, fmt.Sprintf("%s_result.json", jobID))
	if err := os.WriteFile(resultPath, data, 0644); err != nil {
		return nil, "", fmt.Errorf("failed to write result: %w", err)
	}

	log.Info().Str("result", resultPath).Int("frames", len(frames)).Msg("processing complete")
	return result, resultPath, nil
}
