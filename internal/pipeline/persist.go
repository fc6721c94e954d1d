package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/seforimlab/folio/internal/content"
	"github.com/seforimlab/folio/internal/footnotes"
	"github.com/seforimlab/folio/internal/queue"
)

// sourceTag marks records created by this ingestion path.
const sourceTag = "pdf_upload_async"

var paragraphBreak = regexp.MustCompile(`\r?\n\s*\r?\n`)

// persistInput is everything the persistence stage needs from the earlier
// stages.
type persistInput struct {
	pageCount    int
	pages        map[int]string
	enhanced     map[int]bool
	footnotes    []footnotes.Footnote
	needsOCR     bool
	ocrPerformed bool
	textQuality  string
}

// persist writes the document, its footnote statements, and its paragraphs
// to the content store. The document create is fatal; every later item
// failure is logged and skipped so partial output still lands.
func (p *Pipeline) persist(ctx context.Context, job *queue.Job, in persistInput) (string, *queue.DocumentInfo, error) {
	payload := job.Payload

	title := payload.Title
	if title == "" {
		title = strings.TrimSuffix(payload.FileName, ".pdf")
	}

	docID, err := p.store.CreateDocument(ctx, content.Document{
		Title: title,
		Metadata: content.DocumentMetadata{
			Source:       sourceTag,
			Filename:     payload.FileName,
			FileSize:     payload.FileSize,
			TotalPages:   in.pageCount,
			HasTextLayer: !in.needsOCR,
			NeedsOCR:     in.needsOCR,
			TextQuality:  in.textQuality,
			OCRPerformed: in.ocrPerformed,
			Language:     payload.Language,
			UploadedAt:   time.Now().UTC().Format(time.RFC3339),
			JobID:        job.ID,
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to create document: %w", err)
	}

	// One order-key sequence covers footnote statements and paragraphs.
	order := 0

	for _, fn := range in.footnotes {
		_, err := p.store.CreateStatement(ctx, content.Statement{
			OrderKey: fmtOrderKey(order),
			Text:     fn.Text,
			Metadata: content.StatementMetadata{
				DocID:              docID,
				AutoGenerated:      true,
				Source:             "footnote_detection",
				PageNumber:         fn.PageNumber,
				IsFootnote:         true,
				FootnoteMarker:     fn.Marker,
				FootnotePosition:   string(fn.Position),
				FootnoteConfidence: fn.Confidence,
				References:         fn.References,
			},
		})
		if err != nil {
			p.logger.Warn("failed to save footnote statement", "job_id", job.ID, "page", fn.PageNumber, "error", err)
			continue
		}
		order++
	}

	paragraphsCreated := 0

	for num := 1; num <= in.pageCount; num++ {
		pageText := strings.TrimSpace(in.pages[num])
		if pageText == "" {
			continue
		}

		for _, paragraphText := range splitParagraphs(pageText) {
			paragraphID, err := p.store.CreateParagraph(ctx, content.Paragraph{
				DocID:    docID,
				OrderKey: fmtOrderKey(order),
				Text:     paragraphText,
				Metadata: content.ParagraphMetadata{
					SourceLanguage: payload.Language,
					PageNumber:     num,
					HasTextLayer:   !in.needsOCR,
					NeedsOCR:       in.needsOCR,
					OCREnhanced:    in.enhanced[num],
					AutoGenerated:  false,
				},
			})
			if err != nil {
				p.logger.Warn("failed to save paragraph", "job_id", job.ID, "page", num, "error", err)
				continue
			}
			order++
			paragraphsCreated++

			if _, err := p.store.CreateStatement(ctx, content.Statement{
				ParagraphID: paragraphID,
				OrderKey:    "0",
				Text:        paragraphText,
				Metadata: content.StatementMetadata{
					AutoGenerated: true,
					Source:        sourceTag,
					PageNumber:    num,
					OCREnhanced:   in.enhanced[num],
				},
			}); err != nil {
				p.logger.Warn("failed to save statement", "job_id", job.ID, "page", num, "error", err)
			}
		}
	}

	info := &queue.DocumentInfo{
		Pages:             in.pageCount,
		HasTextLayer:      !in.needsOCR,
		NeedsOCR:          in.needsOCR,
		OCRPerformed:      in.ocrPerformed,
		ParagraphsCreated: paragraphsCreated,
		TotalCharacters:   joinedLength(in.pages, in.pageCount),
		Footnotes:         len(in.footnotes),
	}
	if n := len(in.footnotes); n > 0 {
		total := 0.0
		for _, fn := range in.footnotes {
			total += fn.Confidence
		}
		mean := total / float64(n)
		info.FootnoteConfidence = &mean
	}

	return docID, info, nil
}

// splitParagraphs breaks a page into paragraphs on blank lines, dropping
// empties.
func splitParagraphs(pageText string) []string {
	var out []string
	for _, part := range paragraphBreak.Split(pageText, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
