package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Transcriber runs the whisper speech-recognition CLI
type Transcriber struct {
	whisperPath string
	model       string
	language    string
	outputDir   string
	runner      CommandRunner
	logger      zerolog.Logger
}

// NewTranscriber creates a transcriber. An empty outputDir writes the
// transcript next to the input WAV.
func NewTranscriber(runner CommandRunner, outputDir string, logger zerolog.Logger) *Transcriber {
	return &Transcriber{
		whisperPath: "whisper",
		model:       "base",
		language:    "en",
		outputDir:   outputDir,
		runner:      runner,
		logger:      logger.With().Str("component", "transcriber").Logger(),
	}
}

// Transcribe returns the transcript of wavPath
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	outputDir := t.outputDir
	if outputDir == "" {
		outputDir = filepath.Dir(wavPath)
	}

	result, err := t.runner.Run(ctx, t.whisperPath,
		wavPath,
		"--model", t.model,
		"--language", t.language,
		"--output_format", "txt",
		"--output_dir", outputDir,
	)
	if err != nil {
		return "", newToolError(ErrTranscribe, "whisper", result, err)
	}

	stem := strings.TrimSuffix(filepath.Base(wavPath), filepath.Ext(wavPath))
	txtPath := filepath.Join(outputDir, stem+".txt")
	text, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("%w: reading transcript: %v", ErrTranscribe, err)
	}

	t.logger.Info().Str("transcript", txtPath).Int("chars", len(text)).Msg("transcription complete")
	return string(text), nil
}
