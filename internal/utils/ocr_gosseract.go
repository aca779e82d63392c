//go:build !nogosseract

package utils

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// GosseractEngine runs OCR in-process through libtesseract.
// The binding is synchronous; callers run it from a worker goroutine.
type GosseractEngine struct{}

func newLibraryEngine(runner CommandRunner) OCREngine {
	return &GosseractEngine{}
}

// Recognize returns the UTF-8 text found in imagePath, verbatim
func (g *GosseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage("eng"); err != nil {
		return "", &ExternalToolError{Kind: ErrOcrFailed, Tool: "tesseract", ExitCode: -1, Err: err}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", &ExternalToolError{Kind: ErrOcrFailed, Tool: "tesseract", ExitCode: -1, Err: err}
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", &ExternalToolError{Kind: ErrOcrFailed, Tool: "tesseract", ExitCode: -1, Err: err}
	}

	text, err := client.Text()
	if err != nil {
		return "", &ExternalToolError{Kind: ErrOcrFailed, Tool: "tesseract", ExitCode: -1, Err: err}
	}
	return text, nil
}
