package models

import (
	"time"
)

// Stream and key names shared with the job submitter and the AI worker
const (
	VideoQueueStream = "queue:video_processing"
	AIQueueStream    = "queue:ai_processing"
	DeadLetterStream = "queue:video_processing:dead"
	JobKeyPrefix     = "job:"
)

// Job status values written to job:<id>
const (
	StatusPending           = "pending"
	StatusDownloading       = "downloading"
	StatusProcessingVideo   = "processing_video"
	StatusExtractingOCR     = "extracting_ocr"
	StatusTranscribingAudio = "transcribing_audio"
	StatusAIProcessing      = "ai_processing"
	StatusFailed            = "failed"
)

// Progress percentages reported alongside each status
const (
	ProgressDownloading       = 10
	ProgressProcessingVideo   = 25
	ProgressExtractingOCR     = 40
	ProgressTranscribingAudio = 60
	ProgressAIProcessing      = 80
	ProgressFailed            = 0
)

// JobKey returns the status key for a job
func JobKey(jobID string) string {
	return JobKeyPrefix + jobID
}

// JobEnvelope is the job read from the input stream.
// It arrives either as a JSON blob under "data" or as flat job_id/url fields.
type JobEnvelope struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}

// VideoInfo contains technical video information from the probe
type VideoInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	FPS             float64 `json:"fps"`
	Codec           string  `json:"codec"`
}

// FrameData describes one extracted frame image.
// OCRText is nil when OCR found no text.
type FrameData struct {
	Timestamp  float64 `json:"timestamp"`
	FramePath  string  `json:"frame_path"`
	OCRText    *string `json:"ocr_text,omitempty"`
	IsKeyframe bool    `json:"is_keyframe"`
}

// HasText reports whether OCR attached text to the frame
func (f FrameData) HasText() bool {
	return f.OCRText != nil
}

// Resolution is the video frame size
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// EnrichedRecord is the document published to queue:ai_processing
type EnrichedRecord struct {
	JobID           string      `json:"job_id"`
	VideoPath       string      `json:"video_path"`
	DurationSeconds float64     `json:"duration_seconds"`
	Resolution      Resolution  `json:"resolution"`
	FPS             float64     `json:"fps"`
	Frames          []FrameData `json:"frames"`
	AudioPath       *string     `json:"audio_path"`
	Transcription   string      `json:"transcription"`
}

// NewEnrichedRecord assembles the downstream record. Frames is never nil.
func NewEnrichedRecord(jobID, videoPath string, info VideoInfo, frames []FrameData, audioPath *string, transcription string) *EnrichedRecord {
	if frames == nil {
		frames = []FrameData{}
	}
	return &EnrichedRecord{
		JobID:           jobID,
		VideoPath:       videoPath,
		DurationSeconds: info.DurationSeconds,
		Resolution: Resolution{
			Width:  info.Width,
			Height: info.Height,
		},
		FPS:           info.FPS,
		Frames:        frames,
		AudioPath:     audioPath,
		Transcription: transcription,
	}
}

// SingleShotResult is written to <job_id>_result.json in process mode
type SingleShotResult struct {
	JobID         string      `json:"job_id"`
	VideoPath     string      `json:"video_path"`
	VideoInfo     VideoInfo   `json:"video_info"`
	Frames        []FrameData `json:"frames"`
	AudioPath     string      `json:"audio_path"`
	Transcription string      `json:"transcription"`
}

// JobStatus is the subset of job:<id> the worker reads and writes.
// Unknown fields set by the submitter are preserved by the status store.
// Timestamps stay strings since other writers of the key format them differently.
type JobStatus struct {
	JobID        string `json:"job_id,omitempty"`
	URL          string `json:"url,omitempty"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// JobOutcome is the terminal result of one job, recorded in the archive
type JobOutcome struct {
	JobID          string
	URL            string
	Status         string // ai_processing or failed
	Record         *EnrichedRecord
	Error          string
	Degraded       bool
	ProcessingTime time.Duration
	CompletedAt    time.Time
}

// Config holds worker configuration
type Config struct {
	RedisURL            string
	OutputDir           string
	ConsumerGroup       string
	ConsumerName        string
	OCRConcurrency      int
	OCREngine           string
	ToolTimeout         time.Duration
	TranscribeOutputDir string
	DownloadProxyURL    string
	DownloadCookiesPath string
	PostgresURL         string
	StatsInterval       time.Duration
	BlockTimeout        time.Duration
	IdleDelay           time.Duration
	ErrorDelay          time.Duration
	LogLevel            string
	LogFormat           string
}
