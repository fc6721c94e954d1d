// Package pipeline runs a submitted document through extraction, footnote
// detection, the OCR decision, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/seforimlab/folio/internal/content"
	"github.com/seforimlab/folio/internal/footnotes"
	"github.com/seforimlab/folio/internal/ocr"
	"github.com/seforimlab/folio/internal/pdftext"
	"github.com/seforimlab/folio/internal/queue"
)

// TextReader extracts the native text layer of a document.
type TextReader interface {
	Extract(data []byte) (*pdftext.Extraction, error)
}

// FootnoteDetector splits footnotes out of one page's text.
type FootnoteDetector interface {
	Detect(pageText string, pageNumber int) footnotes.Detection
}

// ContentStore persists the structured output of a completed pipeline.
type ContentStore interface {
	CreateDocument(ctx context.Context, doc content.Document) (string, error)
	CreateParagraph(ctx context.Context, p content.Paragraph) (string, error)
	CreateStatement(ctx context.Context, s content.Statement) (string, error)
}

// Pipeline implements queue.Runner. A nil Engine disables OCR: documents
// flagged for OCR fall back to native text with a warning, same as an
// engine failure.
type Pipeline struct {
	reader   TextReader
	detector FootnoteDetector
	engine   ocr.Engine
	store    ContentStore
	logger   *slog.Logger
}

var _ queue.Runner = (*Pipeline)(nil)

// Config configures a new Pipeline.
type Config struct {
	Reader   TextReader
	Detector FootnoteDetector
	Engine   ocr.Engine
	Store    ContentStore
	Logger   *slog.Logger
}

// New creates a new Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		reader:   cfg.Reader,
		detector: cfg.Detector,
		engine:   cfg.Engine,
		store:    cfg.Store,
		logger:   logger.With("component", "pipeline"),
	}
}

// Run processes one job to completion. An error return fails the job; the
// degraded paths (OCR failure, individual item persistence failures) are
// logged and absorbed so the job still completes.
func (p *Pipeline) Run(ctx context.Context, job *queue.Job, report func(queue.Progress)) (*queue.Result, error) {
	report(queue.Progress{Stage: "analyzing", Percentage: 10, Message: "Analyzing PDF structure..."})

	ext, err := p.reader.Extract(job.Payload.Data)
	if err != nil {
		return nil, err
	}

	report(queue.Progress{Stage: "extracting", Percentage: 30, Message: "Extracting text content..."})

	report(queue.Progress{Stage: "footnotes", Percentage: 40, Message: "Detecting footnotes..."})

	// Footnotes come out of the native text; pages the extractor dropped
	// as empty have nothing to detect.
	native := make(map[int]string, len(ext.Pages))
	var found []footnotes.Footnote
	for _, pg := range ext.Pages {
		det := p.detector.Detect(pg.Text, pg.Number)
		native[pg.Number] = det.MainText
		found = append(found, det.Footnotes...)
	}

	needsOCR := decideNeedsOCR(native, ext.PageCount)

	msg := "Text quality good, skipping OCR..."
	if needsOCR {
		msg = "OCR analysis required..."
	}
	report(queue.Progress{Stage: "ocr_check", Percentage: 50, Message: msg})

	final, enhanced, ocrPerformed, quality := p.runOCRStage(ctx, job, report, native, ext.PageCount, needsOCR)

	report(queue.Progress{Stage: "saving", Percentage: 80, Message: "Saving document and paragraphs..."})

	docID, info, err := p.persist(ctx, job, persistInput{
		pageCount:    ext.PageCount,
		pages:        final,
		enhanced:     enhanced,
		footnotes:    found,
		needsOCR:     needsOCR,
		ocrPerformed: ocrPerformed,
		textQuality:  quality,
	})
	if err != nil {
		return nil, err
	}

	report(queue.Progress{Stage: "finalizing", Percentage: 95, Message: "Finalizing document..."})

	return &queue.Result{DocumentID: docID, Info: info}, nil
}

// runOCRStage invokes the engine when the document is flagged for OCR and
// merges the output into the page texts. Engine absence or failure falls
// back to native text for every page.
func (p *Pipeline) runOCRStage(
	ctx context.Context,
	job *queue.Job,
	report func(queue.Progress),
	native map[int]string,
	pageCount int,
	needsOCR bool,
) (final map[int]string, enhanced map[int]bool, ocrPerformed bool, quality string) {
	final = make(map[int]string, pageCount)
	for num, text := range native {
		final[num] = text
	}
	enhanced = make(map[int]bool)

	if !needsOCR {
		return final, enhanced, false, ocr.QualityGood
	}

	if p.engine == nil {
		p.logger.Warn("document needs OCR but no engine is configured, using native text", "job_id", job.ID)
		return final, enhanced, false, ocr.QualityPoor
	}

	report(queue.Progress{Stage: "ocr_processing", Percentage: 60, Message: "Running OCR on scanned content..."})

	pageNumbers := make([]int, pageCount)
	for i := range pageNumbers {
		pageNumbers[i] = i + 1
	}

	results, err := p.engine.Recognize(ctx, job.Payload.Data, pageNumbers)
	if err != nil {
		p.logger.Warn("OCR processing failed, using native text", "job_id", job.ID, "error", err)
		return final, enhanced, false, ocr.QualityPoor
	}

	final, enhanced = mergePages(native, results, pageCount)
	return final, enhanced, true, ocr.ClassifyQuality(ocr.AverageConfidence(results))
}

// charCount counts characters the way the thresholds mean them, not bytes.
func charCount(s string) int {
	return len([]rune(s))
}

// joinedLength is the character count of all non-empty pages joined by
// single spaces, in page order.
func joinedLength(pages map[int]string, pageCount int) int {
	var parts []string
	for num := 1; num <= pageCount; num++ {
		if text := strings.TrimSpace(pages[num]); text != "" {
			parts = append(parts, text)
		}
	}
	return charCount(strings.Join(parts, " "))
}

func fmtOrderKey(n int) string {
	return fmt.Sprintf("%d", n)
}
