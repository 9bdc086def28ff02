// Package ocr recovers accreditation years from page screenshots.
package ocr

import (
	"fmt"
	"image"
	_ "image/jpeg" // decoders for CheckImage
	_ "image/png"
	"os"
	"regexp"
	"strings"

	"github.com/residency-data/goaccredit/internal/logger"
)

// Recognizer turns an image file into raw text.
type Recognizer interface {
	Text(path string) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(path string) (string, error)

// Text implements Recognizer.
func (f RecognizerFunc) Text(path string) (string, error) { return f(path) }

var yearRangePattern = regexp.MustCompile(`\b(20\d{2} - 20\d{2})\b`)

// ExtractYear returns the first academic-year range found in text.
func ExtractYear(text string) (string, bool) {
	for _, m := range yearRangePattern.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[1]); v != "" && v != "-" {
			return v, true
		}
	}
	return "", false
}

// CheckImage decodes the image header so unreadable or corrupt files fail
// before they reach the recognition engine.
func CheckImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("decode image %s: %w", path, err)
	}
	return nil
}

// Recoverer runs recognition over a screenshot and extracts a year from it.
// It never returns recognition errors to the caller.
type Recoverer struct {
	recognizer Recognizer
	log        *logger.Logger
}

// NewRecoverer creates a Recoverer. A nil recognizer disables recovery.
func NewRecoverer(r Recognizer, log *logger.Logger) *Recoverer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recoverer{recognizer: r, log: log}
}

// Recover returns the year found in the image at path, if any.
func (r *Recoverer) Recover(path string) (string, bool) {
	if r == nil || r.recognizer == nil || path == "" {
		return "", false
	}

	text, err := r.recognizer.Text(path)
	if err != nil {
		r.log.Warnw("Image text recognition failed", "path", path, "error", err)
		return "", false
	}

	year, ok := ExtractYear(text)
	if !ok {
		r.log.Debugw("No academic year in recognized text", "path", path)
		return "", false
	}

	r.log.Infow("Recovered academic year from screenshot", "path", path, "year", year)
	return year, true
}
