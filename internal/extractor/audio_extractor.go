package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/utils"
)

// AudioExtractor handles audio extraction and transcription
type AudioExtractor struct {
	ffmpeg      *utils.FFmpegHelper
	transcriber *utils.Transcriber
	logger      zerolog.Logger
}

// NewAudioExtractor creates a new audio extractor
func NewAudioExtractor(ffmpeg *utils.FFmpegHelper, transcriber *utils.Transcriber, logger zerolog.Logger) *AudioExtractor {
	return &AudioExtractor{
		ffmpeg:      ffmpeg,
		transcriber: transcriber,
		logger:      logger.With().Str("component", "audio").Logger(),
	}
}

// AudioPath is where a job's WAV is written
func AudioPath(outputDir, jobID string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s_audio.wav", jobID))
}

// ExtractAudio writes the job's 16 kHz mono WAV and returns its path.
// A non-zero ffmpeg exit is tolerated as long as the file was written
// (videos without an audio track still produce one).
func (ae *AudioExtractor) ExtractAudio(ctx context.Context, videoPath, outputDir, jobID string) (string, error) {
	audioPath := AudioPath(outputDir, jobID)
	log := ae.logger.With().Str("job_id", jobID).Logger()

	result, extractErr := ae.ffmpeg.ExtractAudio(ctx, videoPath, audioPath)
	if extractErr != nil {
		stderr := ""
		if result != nil {
			stderr = strings.TrimSpace(string(result.Stderr))
		}
		log.Warn().Err(extractErr).Str("stderr", stderr).Msg("audio extraction had issues")
	}

	if _, err := os.Stat(audioPath); err != nil {
		if extractErr != nil {
			return "", extractErr
		}
		return "", fmt.Errorf("%w: %s was not created", utils.ErrAudioMissing, audioPath)
	}

	log.Info().Str("audio", audioPath).Msg("audio extracted")
	return audioPath, nil
}

// Transcribe returns the transcript of the WAV, or "" when transcription is
// unavailable or fails
func (ae *AudioExtractor) Transcribe(ctx context.Context, audioPath string) string {
	text, err := ae.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		ae.logger.Warn().Err(err).Str("audio", audioPath).Msg("transcription failed or not available")
		return ""
	}
	return text
}
