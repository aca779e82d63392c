package extractor

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// FrameExtractor extracts keyframes and runs OCR over them in parallel
type FrameExtractor struct {
	ffmpeg      *utils.FFmpegHelper
	ocr         utils.OCREngine
	concurrency int
	logger      zerolog.Logger
}

// NewFrameExtractor creates a new frame extractor. concurrency bounds the OCR worker pool.
func NewFrameExtractor(ffmpeg *utils.FFmpegHelper, ocr utils.OCREngine, concurrency int, logger zerolog.Logger) *FrameExtractor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &FrameExtractor{
		ffmpeg:      ffmpeg,
		ocr:         ocr,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "frames").Logger(),
	}
}

// FramesDir is the directory holding a job's extracted images
func FramesDir(outputDir, jobID string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_frames", jobID))
}

// ExtractKeyframes runs the scene-change and regular-interval passes and returns
// every extracted frame sorted by timestamp. Failure of either pass is logged and
// leaves only what the other pass produced.
func (fe *FrameExtractor) ExtractKeyframes(ctx context.Context, videoPath, outputDir, jobID string) ([]models.FrameData, error) {
	framesDir := FramesDir(outputDir, jobID)
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %w", err)
	}

	log := fe.logger.With().Str("job_id", jobID).Logger()

	if err := fe.ffmpeg.ExtractSceneFrames(ctx, videoPath, framesDir); err != nil {
		log.Warn().Err(err).Msg("scene-change extraction failed")
	}
	if err := fe.ffmpeg.ExtractRegularFrames(ctx, videoPath, framesDir); err != nil {
		log.Debug().Err(err).Msg("regular-interval extraction failed")
	}

	frames, err := CollectFrames(framesDir)
	if err != nil {
		return nil, err
	}

	log.Info().Int("frames", len(frames)).Msg("extracted frames")
	return frames, nil
}

// CollectFrames lists the *.jpg images in dir as frames sorted by ascending timestamp.
// The timestamp is the trailing numeric token of the file stem.
func CollectFrames(dir string) ([]models.FrameData, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory: %w", err)
	}

	frames := []models.FrameData{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jpg" {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".jpg")
		frames = append(frames, models.FrameData{
			Timestamp:  parseTimestamp(stem),
			FramePath:  filepath.Join(dir, entry.Name()),
			IsKeyframe: strings.HasPrefix(stem, "frame_"),
		})
	}

	slices.SortStableFunc(frames, func(a, b models.FrameData) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return frames, nil
}

// parseTimestamp reads the token after the last underscore, 0 when absent
func parseTimestamp(stem string) float64 {
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return 0
	}
	ts, err := strconv.ParseFloat(stem[idx+1:], 64)
	if err != nil {
		return 0
	}
	return ts
}

// RecognizeText runs OCR on every frame using a bounded worker pool.
// The result has the same length and order as frames; a frame gets OCRText
// only when OCR succeeded with non-blank text.
func (fe *FrameExtractor) RecognizeText(ctx context.Context, frames []models.FrameData) []models.FrameData {
	results := slices.Clone(frames)
	if results == nil {
		results = []models.FrameData{}
	}

	fe.logger.Info().Int("frames", len(results)).Msg("running OCR")

	// Create worker pool
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, fe.concurrency)

	for i := range results {
		wg.Add(1)

		go func(index int) {
			defer wg.Done()

			// Acquire semaphore
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			path := results[index].FramePath
			defer func() {
				if r := recover(); r != nil {
					fe.logger.Warn().Str("frame", path).Interface("panic", r).Msg("OCR task aborted")
				}
			}()

			text, err := fe.ocr.Recognize(ctx, path)
			if err != nil {
				fe.logger.Warn().Err(err).Str("frame", path).Msg("OCR failed")
				return
			}
			if strings.TrimSpace(text) == "" {
				return
			}
			results[index].OCRText = &text
		}(i)
	}

	// Wait for all goroutines
	wg.Wait()

	withText := 0
	for _, f := range results {
		if f.HasText() {
			withText++
		}
	}
	fe.logger.Info().Int("with_text", withText).Int("frames", len(results)).Msg("OCR complete")

	return results
}
