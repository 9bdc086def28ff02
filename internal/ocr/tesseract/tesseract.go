// Package tesseract is the Tesseract-backed ocr.Recognizer.
package tesseract

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/residency-data/goaccredit/internal/ocr"
)

// Engine recognizes text with a fresh Tesseract client per image.
type Engine struct {
	languages []string
}

// New returns an Engine. With no languages Tesseract's default is used.
func New(languages ...string) *Engine {
	return &Engine{languages: languages}
}

// Text implements ocr.Recognizer.
func (e *Engine) Text(path string) (string, error) {
	if err := ocr.CheckImage(path); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set tesseract language: %w", err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("load image %s: %w", path, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize %s: %w", path, err)
	}
	return text, nil
}

var _ ocr.Recognizer = (*Engine)(nil)
