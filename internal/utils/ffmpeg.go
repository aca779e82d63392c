package utils

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// SceneThreshold is the scene-change score above which a frame is kept
	SceneThreshold = 0.3
	// RegularIntervalSeconds is the spacing of fixed-interval samples
	RegularIntervalSeconds = 2

	// KeyframePattern and RegularPattern name the extracted images
	KeyframePattern = "frame_%04d.jpg"
	RegularPattern  = "regular_%04d.jpg"

	defaultFPS = 30.0
)

// FFmpegHelper provides utilities for FFmpeg operations
type FFmpegHelper struct {
	ffmpegPath  string
	ffprobePath string
	runner      CommandRunner
	logger      zerolog.Logger
}

// NewFFmpegHelper creates a new FFmpeg helper using the binaries on PATH
func NewFFmpegHelper(runner CommandRunner, logger zerolog.Logger) *FFmpegHelper {
	return &FFmpegHelper{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      runner,
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
	}
}

// ProbeVideo runs ffprobe for the first video stream and the container duration
// and returns its JSON document
func (h *FFmpegHelper) ProbeVideo(ctx context.Context, videoPath string) ([]byte, error) {
	result, err := h.runner.Run(ctx, h.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,codec_name:format=duration",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return nil, newToolError(ErrProbeFailed, "ffprobe", result, err)
	}
	return result.Stdout, nil
}

// ExtractSceneFrames extracts frames whose scene-change score exceeds SceneThreshold
func (h *FFmpegHelper) ExtractSceneFrames(ctx context.Context, videoPath, outputDir string) error {
	result, err := h.runner.Run(ctx, h.ffmpegPath,
		"-i", videoPath,
		"-vf", fmt.Sprintf("select='gt(scene,%s)'", strconv.FormatFloat(SceneThreshold, 'f', -1, 64)),
		"-vsync", "vfr",
		"-frame_pts", "1",
		"-q:v", "2",
		"-y",
		filepath.Join(outputDir, KeyframePattern),
	)
	if err != nil {
		return newToolError(ErrFrameExtraction, "ffmpeg", result, err)
	}
	return nil
}

// ExtractRegularFrames extracts one frame every RegularIntervalSeconds
func (h *FFmpegHelper) ExtractRegularFrames(ctx context.Context, videoPath, outputDir string) error {
	result, err := h.runner.Run(ctx, h.ffmpegPath,
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%d", RegularIntervalSeconds),
		"-frame_pts", "1",
		"-q:v", "2",
		"-y",
		filepath.Join(outputDir, RegularPattern),
	)
	if err != nil {
		return newToolError(ErrFrameExtraction, "ffmpeg", result, err)
	}
	return nil
}

// ExtractAudio extracts the audio track to 16 kHz mono PCM WAV.
// The result is returned even on failure so callers can inspect stderr.
func (h *FFmpegHelper) ExtractAudio(ctx context.Context, videoPath, outputPath string) (*CommandResult, error) {
	result, err := h.runner.Run(ctx, h.ffmpegPath,
		"-i", videoPath,
		"-vn",                  // No video
		"-acodec", "pcm_s16le", // PCM WAV format
		"-ar", "16000", // 16kHz sample rate (optimal for speech recognition)
		"-ac", "1", // Mono
		"-y",
		outputPath,
	)
	if err != nil {
		return result, newToolError(ErrAudioMissing, "ffmpeg", result, err)
	}
	return result, nil
}

// ParseFPS parses an ffprobe frame rate such as "30000/1001" or "24".
// Unparseable values and zero denominators yield 30.
func ParseFPS(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return defaultFPS
		}
		return n / d
	}

	fps, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return defaultFPS
	}
	return fps
}

// DependencyReport lists which external tools are on PATH
type DependencyReport struct {
	Found   map[string]string
	Missing []string
}

// CheckDependencies looks up every external tool the pipeline invokes
func CheckDependencies(tools ...string) DependencyReport {
	report := DependencyReport{Found: make(map[string]string)}
	for _, tool := range tools {
		if path, err := exec.LookPath(tool); err == nil {
			report.Found[tool] = path
		} else {
			report.Missing = append(report.Missing, tool)
		}
	}
	return report
}
