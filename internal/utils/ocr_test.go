package utils

import (
	"context"
	"errors"
	"testing"
)

type fakeRunner struct {
	name string
	args []string
	out  string
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	f.name, f.args = name, args
	return &CommandResult{Stdout: []byte(f.out)}, f.err
}

func TestNewOCREngineCLI(t *testing.T) {
	runner := &fakeRunner{out: "  200g flour\n"}
	engine := NewOCREngine(OCREngineCLI, runner)

	if _, ok := engine.(*TesseractCLI); !ok {
		t.Fatalf("expected *TesseractCLI, got %T", engine)
	}
	text, err := engine.Recognize(context.Background(), "/tmp/frame_0001.jpg")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "  200g flour\n" {
		t.Fatalf("text should be returned verbatim, got %q", text)
	}
	if runner.name != "tesseract" || runner.args[0] != "/tmp/frame_0001.jpg" {
		t.Fatalf("unexpected invocation %s %v", runner.name, runner.args)
	}
}

func TestTesseractCLIFailureIsOcrFailed(t *testing.T) {
	engine := NewOCREngine(OCREngineCLI, &fakeRunner{err: errors.New("exit status 1")})

	if _, err := engine.Recognize(context.Background(), "/tmp/frame_0001.jpg"); !errors.Is(err, ErrOcrFailed) {
		t.Fatalf("expected ErrOcrFailed, got %v", err)
	}
}
