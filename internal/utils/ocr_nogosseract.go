//go:build nogosseract

package utils

// newLibraryEngine falls back to the tesseract CLI when libtesseract is not linked
func newLibraryEngine(runner CommandRunner) OCREngine {
	return NewTesseractCLI(runner)
}
