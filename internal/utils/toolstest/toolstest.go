// Package toolstest provides a scripted CommandRunner that stands in for
// yt-dlp, ffprobe, ffmpeg, whisper and tesseract in tests.
package toolstest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/reeltorecipe/video-worker/internal/utils"
)

// Handler simulates one tool
type Handler func(args []string) (*utils.CommandResult, error)

// Call records one invocation
type Call struct {
	Name string
	Args []string
}

// FakeRunner dispatches invocations to per-tool handlers. Tools without a
// handler behave as if missing from PATH.
type FakeRunner struct {
	mu       sync.Mutex
	calls    []Call
	handlers map[string]Handler
}

// NewFakeRunner creates an empty runner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{handlers: make(map[string]Handler)}
}

// Handle registers the handler for a tool name
func (f *FakeRunner) Handle(name string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
	return f
}

// Run implements utils.CommandRunner
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (*utils.CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: slices.Clone(args)})
	h := f.handlers[name]
	f.mu.Unlock()

	if h == nil {
		return &utils.CommandResult{ExitCode: -1}, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return h(args)
}

// CallsTo returns the recorded invocations of a tool
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Fail returns a handler that exits with code and stderr
func Fail(code int, stderr string) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		return &utils.CommandResult{ExitCode: code, Stderr: []byte(stderr)}, fmt.Errorf("exit status %d", code)
	}
}

// Stdout returns a handler that succeeds printing out
func Stdout(out string) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		return &utils.CommandResult{Stdout: []byte(out)}, nil
	}
}

// YTDLP simulates a successful download producing a file with extension ext
func YTDLP(ext string) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		template := flagValue(args, "--output")
		if template == "" {
			return Fail(2, "missing --output")(args)
		}
		path := strings.Replace(template, "%(ext)s", ext, 1)
		if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
			return nil, err
		}
		return &utils.CommandResult{}, nil
	}
}

// FFprobeJSON is a typical ffprobe document for a 1080p clip
const FFprobeJSON = `{
  "programs": [],
  "streams": [
    {"codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
  ],
  "format": {"duration": "42.500000"}
}`

// FFmpegScript configures the simulated ffmpeg
type FFmpegScript struct {
	SceneFrames   []int // numeric suffixes written by the scene pass
	RegularFrames []int // numeric suffixes written by the regular pass
	SceneFails    bool
	RegularFails  bool
	AudioFails    bool
	AudioNoFile   bool // audio pass exits non-zero without writing the WAV
}

// FFmpeg simulates frame and audio extraction
func FFmpeg(script FFmpegScript) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		if len(args) == 0 {
			return Fail(1, "no output")(args)
		}
		output := args[len(args)-1]

		if slices.Contains(args, "-vn") {
			if script.AudioNoFile {
				return Fail(1, "Output file #0 does not contain any stream")(args)
			}
			if err := os.WriteFile(output, []byte("RIFF"), 0644); err != nil {
				return nil, err
			}
			if script.AudioFails {
				return Fail(1, "Stream map '0:a' matches no streams")(args)
			}
			return &utils.CommandResult{}, nil
		}

		var numbers []int
		switch filepath.Base(output) {
		case utils.KeyframePattern:
			if script.SceneFails {
				return Fail(1, "Invalid argument")(args)
			}
			numbers = script.SceneFrames
		case utils.RegularPattern:
			if script.RegularFails {
				return Fail(1, "Invalid argument")(args)
			}
			numbers = script.RegularFrames
		default:
			return Fail(1, "unexpected output "+output)(args)
		}

		for _, n := range numbers {
			name := fmt.Sprintf(output, n)
			if err := os.WriteFile(name, []byte("jpeg"), 0644); err != nil {
				return nil, err
			}
		}
		return &utils.CommandResult{}, nil
	}
}

// Whisper simulates a transcription writing text to <output_dir>/<stem>.txt
func Whisper(text string) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		if len(args) == 0 {
			return Fail(2, "no input")(args)
		}
		input := args[0]
		dir := flagValue(args, "--output_dir")
		stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		if err := os.WriteFile(filepath.Join(dir, stem+".txt"), []byte(text), 0644); err != nil {
			return nil, err
		}
		return &utils.CommandResult{}, nil
	}
}

// Tesseract returns per-image text keyed by file base name; unknown images yield ""
func Tesseract(texts map[string]string) Handler {
	return func(args []string) (*utils.CommandResult, error) {
		if len(args) == 0 {
			return Fail(1, "no image")(args)
		}
		return &utils.CommandResult{Stdout: []byte(texts[filepath.Base(args[0])])}, nil
	}
}

func flagValue(args []string, name string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}
