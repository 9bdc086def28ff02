package acgme

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/residency-data/goaccredit/internal/logger"
)

// TableResult is what the table reader found on the history page.
type TableResult struct {
	Year string
	OK   bool
	// Screenshot is the artifact captured on failure, empty when capture failed.
	Screenshot string
}

// TableReader reads the first academic year from the accreditation history table.
type TableReader struct {
	timeout   time.Duration
	artifacts Artifacts
	log       *logger.Logger
}

// NewTableReader creates a TableReader that waits up to timeout for the table.
func NewTableReader(timeout time.Duration, artifacts Artifacts, log *logger.Logger) *TableReader {
	if log == nil {
		log = logger.NewNop()
	}
	return &TableReader{timeout: timeout, artifacts: artifacts, log: log}
}

// Read extracts the year from the page. On failure a screenshot is saved for
// the OCR fallback.
func (r *TableReader) Read(ctx context.Context, page Page, programID string) TableResult {
	log := r.log.WithRecord(programID).WithStage("table")

	year, err := r.read(ctx, page)
	if err == nil {
		log.Infow("Read academic year from table", "year", year)
		return TableResult{Year: year, OK: true}
	}
	log.Warnw("Accreditation table unreadable", "error", err)

	path := r.artifacts.Screenshot(programID)
	if err := page.Screenshot(ctx, path); err != nil {
		log.Warnw("Screenshot capture failed", "error", err)
		return TableResult{}
	}
	log.Debugw("Saved screenshot", "path", path)
	return TableResult{Screenshot: path}
}

func (r *TableReader) read(ctx context.Context, page Page) (string, error) {
	if err := page.WaitFor(ctx, "table", r.timeout); err != nil {
		return "", err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return "", err
	}
	return ParseYear(html)
}

// ParseYear scans every table row on the page in document order, skipping
// the first row overall, and returns the first leading cell that is neither
// empty nor a placeholder dash.
func ParseYear(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse history page: %w", err)
	}

	if doc.Find("table").Length() == 0 {
		return "", fmt.Errorf("no table on page")
	}

	rows := doc.Find("table tr")
	if rows.Length() < 2 {
		return "", fmt.Errorf("table has no data rows")
	}

	var year string
	rows.Slice(1, goquery.ToEnd).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return true
		}
		text := strings.TrimSpace(cell.Text())
		if text == "" || text == "-" {
			return true
		}
		year = text
		return false
	})

	if year == "" {
		return "", fmt.Errorf("no row with an academic year")
	}
	return year, nil
}
