package utils

import (
	"context"
)

// OCREngine extracts text from a single image.
// Implementations use English, treat the page as one uniform block of text
// and apply no character whitelist.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// OCR engine names accepted by NewOCREngine
const (
	OCREngineLibrary = "gosseract"
	OCREngineCLI     = "tesseract-cli"
)

// NewOCREngine returns the engine named by kind. Anything other than
// OCREngineCLI selects the libtesseract binding; builds tagged nogosseract
// do not link it and use the CLI instead.
func NewOCREngine(kind string, runner CommandRunner) OCREngine {
	if kind == OCREngineCLI {
		return NewTesseractCLI(runner)
	}
	return newLibraryEngine(runner)
}

// TesseractCLI runs the tesseract binary
type TesseractCLI struct {
	tesseractPath string
	runner        CommandRunner
}

// NewTesseractCLI creates an OCR engine backed by the tesseract executable
func NewTesseractCLI(runner CommandRunner) *TesseractCLI {
	return &TesseractCLI{
		tesseractPath: "tesseract",
		runner:        runner,
	}
}

// Recognize returns the UTF-8 text tesseract finds in imagePath, verbatim
func (t *TesseractCLI) Recognize(ctx context.Context, imagePath string) (string, error) {
	result, err := t.runner.Run(ctx, t.tesseractPath,
		imagePath,
		"stdout",
		"-l", "eng",
		"--psm", "6", // Assume a single uniform block of text
	)
	if err != nil {
		return "", newToolError(ErrOcrFailed, "tesseract", result, err)
	}
	return string(result.Stdout), nil
}
