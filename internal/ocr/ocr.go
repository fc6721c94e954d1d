// Package ocr recognizes text on scanned PDF pages.
package ocr

import (
	"context"
	"regexp"
	"strings"
)

// PageResult is the recognized text of one page. Confidence is the
// engine's self-reported estimate on a 0..100 scale.
type PageResult struct {
	PageNumber int
	Text       string
	Confidence float64
}

// Engine runs character recognition over selected pages of a PDF.
// Implementations may return fewer results than requested pages; callers
// match results to pages by PageNumber.
type Engine interface {
	Recognize(ctx context.Context, pdf []byte, pageNumbers []int) ([]PageResult, error)
}

// Quality tiers derived from average recognition confidence.
const (
	QualityExcellent = "excellent"
	QualityGood      = "good"
	QualityPoor      = "poor"
)

const (
	excellentConfidence = 80
	goodConfidence      = 60
)

// ClassifyQuality maps an average confidence to a quality tier.
func ClassifyQuality(avgConfidence float64) string {
	switch {
	case avgConfidence > excellentConfidence:
		return QualityExcellent
	case avgConfidence > goodConfidence:
		return QualityGood
	default:
		return QualityPoor
	}
}

var runsOfWhitespace = regexp.MustCompile(`\s+`)

// PostProcessHebrew normalizes recognized Hebrew text: whitespace runs
// collapse to single spaces and the result is trimmed.
func PostProcessHebrew(text string) string {
	return strings.TrimSpace(runsOfWhitespace.ReplaceAllString(text, " "))
}

// AverageConfidence returns the mean confidence across results, 0 when
// there are none.
func AverageConfidence(results []PageResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range results {
		total += r.Confidence
	}
	return total / float64(len(results))
}
