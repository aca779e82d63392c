package extractor_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/extractor"
	"github.com/reeltorecipe/video-worker/internal/utils"
	"github.com/reeltorecipe/video-worker/internal/utils/toolstest"
)

func newAudioExtractor(runner utils.CommandRunner) *extractor.AudioExtractor {
	logger := zerolog.Nop()
	return extractor.NewAudioExtractor(
		utils.NewFFmpegHelper(runner, logger),
		utils.NewTranscriber(runner, "", logger),
		logger,
	)
}

func TestExtractAudioWritesJobWAV(t *testing.T) {
	dir := t.TempDir()
	runner := toolstest.NewFakeRunner().Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{}))

	path, err := newAudioExtractor(runner).ExtractAudio(context.Background(), "/v.mp4", dir, "J1")
	if err != nil {
		t.Fatalf("extract audio: %v", err)
	}
	if path != filepath.Join(dir, "J1_audio.wav") {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestExtractAudioNonZeroExitWithFileSucceeds(t *testing.T) {
	runner := toolstest.NewFakeRunner().Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{AudioFails: true}))

	path, err := newAudioExtractor(runner).ExtractAudio(context.Background(), "/v.mp4", t.TempDir(), "J1")
	if err != nil || path == "" {
		t.Fatalf("expected success when the WAV exists, got %q, %v", path, err)
	}
}

func TestExtractAudioMissingFile(t *testing.T) {
	runner := toolstest.NewFakeRunner().Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{AudioNoFile: true}))

	_, err := newAudioExtractor(runner).ExtractAudio(context.Background(), "/v.mp4", t.TempDir(), "J1")
	if !errors.Is(err, utils.ErrAudioMissing) {
		t.Fatalf("expected ErrAudioMissing, got %v", err)
	}
}

func TestTranscribeReadsSiblingTranscript(t *testing.T) {
	dir := t.TempDir()
	runner := toolstest.NewFakeRunner().
		Handle("ffmpeg", toolstest.FFmpeg(toolstest.FFmpegScript{})).
		Handle("whisper", toolstest.Whisper("mix the flour and sugar"))
	ae := newAudioExtractor(runner)

	wav, err := ae.ExtractAudio(context.Background(), "/v.mp4", dir, "J1")
	if err != nil {
		t.Fatal(err)
	}
	if got := ae.Transcribe(context.Background(), wav); got != "mix the flour and sugar" {
		t.Fatalf("unexpected transcript %q", got)
	}

	args := runner.CallsTo("whisper")[0].Args
	if args[0] != wav {
		t.Fatalf("whisper should receive the WAV first: %v", args)
	}
}

func TestTranscribeUnavailableReturnsEmpty(t *testing.T) {
	ae := newAudioExtractor(toolstest.NewFakeRunner())

	if got := ae.Transcribe(context.Background(), filepath.Join(t.TempDir(), "J1_audio.wav")); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestTranscribeFailureReturnsEmpty(t *testing.T) {
	runner := toolstest.NewFakeRunner().Handle("whisper", toolstest.Fail(1, "CUDA error"))

	if got := newAudioExtractor(runner).Transcribe(context.Background(), "/tmp/J1_audio.wav"); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}
