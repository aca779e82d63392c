package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/reeltorecipe/video-worker/internal/models"
	"github.com/reeltorecipe/video-worker/internal/utils"
)

// FFprobeOutput represents the JSON output from ffprobe
type FFprobeOutput struct {
	Streams []FFprobeStream `json:"streams"`
	Format  FFprobeFormat   `json:"format"`
}

// FFprobeStream is the subset of a video stream the worker requests
type FFprobeStream struct {
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// FFprobeFormat represents container-level information
type FFprobeFormat struct {
	Duration string `json:"duration"`
}

// MetadataExtractor handles video metadata extraction
type MetadataExtractor struct {
	ffmpeg *utils.FFmpegHelper
	logger zerolog.Logger
}

// NewMetadataExtractor creates a new metadata extractor
func NewMetadataExtractor(ffmpeg *utils.FFmpegHelper, logger zerolog.Logger) *MetadataExtractor {
	return &MetadataExtractor{
		ffmpeg: ffmpeg,
		logger: logger.With().Str("component", "probe").Logger(),
	}
}

// Extract probes videoPath and maps the result to VideoInfo
func (me *MetadataExtractor) Extract(ctx context.Context, videoPath string) (*models.VideoInfo, error) {
	output, err := me.ffmpeg.ProbeVideo(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	info, err := ParseVideoInfo(output)
	if err != nil {
		return nil, err
	}

	me.logger.Info().
		Float64("duration", info.DurationSeconds).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Str("codec", info.Codec).
		Msg("video info")
	return info, nil
}

// ParseVideoInfo decodes an ffprobe JSON document. Missing values default to
// zero, a 30 fps frame rate and the "unknown" codec.
func ParseVideoInfo(data []byte) (*models.VideoInfo, error) {
	var probe FFprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ffprobe JSON: %v", utils.ErrProbeFailed, err)
	}

	var stream FFprobeStream
	if len(probe.Streams) > 0 {
		stream = probe.Streams[0]
	}

	info := &models.VideoInfo{
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    utils.ParseFPS(stream.RFrameRate),
		Codec:  stream.CodecName,
	}
	if info.Codec == "" {
		info.Codec = "unknown"
	}
	if duration, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.DurationSeconds = duration
	}

	return info, nil
}
