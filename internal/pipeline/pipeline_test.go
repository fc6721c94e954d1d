package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/seforimlab/folio/internal/content"
	"github.com/seforimlab/folio/internal/footnotes"
	"github.com/seforimlab/folio/internal/ocr"
	"github.com/seforimlab/folio/internal/pdftext"
	"github.com/seforimlab/folio/internal/queue"
)

type fakeReader struct {
	ext *pdftext.Extraction
	err error
}

func (f *fakeReader) Extract(data []byte) (*pdftext.Extraction, error) {
	return f.ext, f.err
}

type fakeEngine struct {
	results []ocr.PageResult
	err     error
	called  bool
}

func (f *fakeEngine) Recognize(ctx context.Context, pdf []byte, pageNumbers []int) ([]ocr.PageResult, error) {
	f.called = true
	return f.results, f.err
}

// memStore records created items and can be scripted to fail.
type memStore struct {
	mu         sync.Mutex
	documents  []content.Document
	paragraphs []content.Paragraph
	statements []content.Statement

	failDocument   bool
	failParagraphs int // fail the first N paragraph creates
}

func (m *memStore) CreateDocument(ctx context.Context, doc content.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDocument {
		return "", errors.New("content store down")
	}
	m.documents = append(m.documents, doc)
	return "doc-1", nil
}

func (m *memStore) CreateParagraph(ctx context.Context, p content.Paragraph) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failParagraphs > 0 {
		m.failParagraphs--
		return "", errors.New("rejected")
	}
	m.paragraphs = append(m.paragraphs, p)
	return fmt.Sprintf("para-%d", len(m.paragraphs)), nil
}

func (m *memStore) CreateStatement(ctx context.Context, s content.Statement) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statements = append(m.statements, s)
	return fmt.Sprintf("stmt-%d", len(m.statements)), nil
}

func testPipeline(reader TextReader, engine ocr.Engine, store ContentStore) *Pipeline {
	return New(Config{
		Reader:   reader,
		Detector: footnotes.NewDetector(),
		Engine:   engine,
		Store:    store,
	})
}

func testPDFJob(id string) *queue.Job {
	return &queue.Job{
		ID:     id,
		Type:   queue.TypePDFProcessing,
		Status: queue.StatusProcessing,
		Payload: queue.Payload{
			FileName: "sefer.pdf",
			FileSize: 2048,
			Language: "he",
			Data:     []byte("%PDF-1.4 fake"),
		},
	}
}

func discardProgress(queue.Progress) {}

func TestPipeline_NativePathSkipsOCR(t *testing.T) {
	// 500, 50 and 300 character pages: avg 283/page, OCR never invoked.
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 3,
		Pages: []pdftext.Page{
			{Number: 1, Text: hebrew(500)},
			{Number: 2, Text: hebrew(50)},
			{Number: 3, Text: hebrew(300)},
		},
	}}
	engine := &fakeEngine{err: errors.New("engine offline")}
	store := &memStore{}

	p := testPipeline(reader, engine, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if engine.called {
		t.Error("OCR engine invoked on the native fast path")
	}
	if result.DocumentID != "doc-1" {
		t.Errorf("documentID = %s", result.DocumentID)
	}

	info := result.Info
	if info == nil {
		t.Fatal("result missing diagnostics")
	}
	if !info.HasTextLayer || info.NeedsOCR || info.OCRPerformed {
		t.Errorf("flags = %+v", info)
	}
	if info.Pages != 3 {
		t.Errorf("pages = %d, want 3", info.Pages)
	}
	if info.ParagraphsCreated != 3 {
		t.Errorf("paragraphs = %d, want 3", info.ParagraphsCreated)
	}
	// Three pages joined by two spaces.
	if info.TotalCharacters != 852 {
		t.Errorf("totalCharacters = %d, want 852", info.TotalCharacters)
	}
	if info.Footnotes != 0 || info.FootnoteConfidence != nil {
		t.Errorf("footnote diagnostics = %d, %v", info.Footnotes, info.FootnoteConfidence)
	}
}

func TestPipeline_OCRFailureFallsBackToNative(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 2,
		Pages: []pdftext.Page{
			{Number: 1, Text: hebrew(80)},
			{Number: 2, Text: hebrew(90)},
		},
	}}
	engine := &fakeEngine{err: errors.New("model unavailable")}
	store := &memStore{}

	p := testPipeline(reader, engine, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("OCR failure must not fail the job: %v", err)
	}

	if !engine.called {
		t.Error("engine should have been invoked")
	}
	info := result.Info
	if !info.NeedsOCR {
		t.Error("avg 85 chars/page should need OCR")
	}
	if info.OCRPerformed {
		t.Error("ocr_performed should be false after engine failure")
	}
	if info.ParagraphsCreated != 2 {
		t.Errorf("paragraphs = %d, want 2 native pages", info.ParagraphsCreated)
	}
}

func TestPipeline_ScannedDocumentUsesOCR(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{PageCount: 2}}
	engine := &fakeEngine{results: []ocr.PageResult{
		{PageNumber: 1, Text: hebrew(300), Confidence: 85},
		{PageNumber: 2, Text: hebrew(280), Confidence: 95},
	}}
	store := &memStore{}

	p := testPipeline(reader, engine, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	info := result.Info
	if !info.NeedsOCR || !info.OCRPerformed || info.HasTextLayer {
		t.Errorf("flags = %+v", info)
	}
	if info.ParagraphsCreated != 2 {
		t.Errorf("paragraphs = %d, want 2", info.ParagraphsCreated)
	}

	if len(store.documents) != 1 {
		t.Fatalf("documents = %d", len(store.documents))
	}
	meta := store.documents[0].Metadata
	if meta.TextQuality != ocr.QualityExcellent {
		t.Errorf("text_quality = %s, want excellent", meta.TextQuality)
	}
	for _, para := range store.paragraphs {
		if !para.Metadata.OCREnhanced {
			t.Error("scanned paragraphs should be marked ocr_enhanced")
		}
	}
}

func TestPipeline_NoEngineConfigured(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: hebrew(80)}},
	}}
	store := &memStore{}

	p := testPipeline(reader, nil, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("missing engine must not fail the job: %v", err)
	}
	if result.Info.OCRPerformed {
		t.Error("ocr_performed should be false without an engine")
	}
	if store.documents[0].Metadata.TextQuality != ocr.QualityPoor {
		t.Errorf("text_quality = %s, want poor", store.documents[0].Metadata.TextQuality)
	}
}

func TestPipeline_ExtractionErrorFailsJob(t *testing.T) {
	reader := &fakeReader{err: errors.New("failed to parse PDF: broken xref")}
	p := testPipeline(reader, nil, &memStore{})

	if _, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress); err == nil {
		t.Fatal("Run() should fail on unparseable input")
	}
}

func TestPipeline_DocumentCreateErrorFailsJob(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: hebrew(300)}},
	}}
	store := &memStore{failDocument: true}

	p := testPipeline(reader, nil, store)
	if _, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress); err == nil {
		t.Fatal("Run() should fail when the document create fails")
	}
}

func TestPipeline_ParagraphFailureIsSkipped(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 2,
		Pages: []pdftext.Page{
			{Number: 1, Text: hebrew(300)},
			{Number: 2, Text: hebrew(300)},
		},
	}}
	store := &memStore{failParagraphs: 1}

	p := testPipeline(reader, nil, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("one bad paragraph must not fail the job: %v", err)
	}

	if result.Info.ParagraphsCreated != 1 {
		t.Errorf("paragraphs = %d, want 1 surviving", result.Info.ParagraphsCreated)
	}
	// Each surviving paragraph still gets its statement.
	if len(store.statements) != 1 {
		t.Errorf("statements = %d, want 1", len(store.statements))
	}
}

func TestPipeline_BlankLinesSplitParagraphs(t *testing.T) {
	pageText := hebrew(100) + "\n\n" + hebrew(100) + "\n   \n" + hebrew(101)
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: pageText}},
	}}
	store := &memStore{}

	p := testPipeline(reader, nil, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Info.ParagraphsCreated != 3 {
		t.Fatalf("paragraphs = %d, want 3", result.Info.ParagraphsCreated)
	}
	for i, para := range store.paragraphs {
		if para.OrderKey != fmt.Sprintf("%d", i) {
			t.Errorf("order key[%d] = %s", i, para.OrderKey)
		}
		if para.DocID != "doc-1" {
			t.Errorf("paragraph doc_id = %s", para.DocID)
		}
	}
}

func TestPipeline_FootnotesPersistAsStatements(t *testing.T) {
	var lines []string
	for i := 0; i < 6; i++ {
		lines = append(lines, strings.Repeat("של", 30))
	}
	lines = append(lines, "א. "+strings.Repeat("הערה ראשונה על הפסוק ", 2))
	lines = append(lines, "ב. "+strings.Repeat("הערה שניה על הפסוק ", 2))
	pageText := strings.Join(lines, "\n")

	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: pageText}},
	}}
	store := &memStore{}

	p := testPipeline(reader, nil, store)
	result, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	info := result.Info
	if info.Footnotes != 2 {
		t.Fatalf("footnotes = %d, want 2", info.Footnotes)
	}
	if info.FootnoteConfidence == nil {
		t.Fatal("mean footnote confidence missing")
	}
	if *info.FootnoteConfidence <= 0 || *info.FootnoteConfidence > 1 {
		t.Errorf("mean footnote confidence = %f", *info.FootnoteConfidence)
	}

	var fnStatements []content.Statement
	for _, s := range store.statements {
		if s.Metadata.IsFootnote {
			fnStatements = append(fnStatements, s)
		}
	}
	if len(fnStatements) != 2 {
		t.Fatalf("footnote statements = %d, want 2", len(fnStatements))
	}
	for _, s := range fnStatements {
		if s.ParagraphID != "" {
			t.Error("footnote statements must not attach to a paragraph")
		}
		if s.Metadata.DocID != "doc-1" {
			t.Errorf("footnote statement doc_id = %s", s.Metadata.DocID)
		}
		if s.Metadata.FootnoteMarker == "" {
			t.Error("footnote marker missing")
		}
	}
}

func TestPipeline_ProgressCheckpoints(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: hebrew(50)}},
	}}
	engine := &fakeEngine{results: []ocr.PageResult{{PageNumber: 1, Text: hebrew(300), Confidence: 90}}}
	store := &memStore{}

	var stages []string
	var lastPct int
	report := func(p queue.Progress) {
		stages = append(stages, p.Stage)
		if p.Percentage < lastPct {
			t.Errorf("progress went backwards: %s at %d after %d", p.Stage, p.Percentage, lastPct)
		}
		lastPct = p.Percentage
	}

	p := testPipeline(reader, engine, store)
	if _, err := p.Run(context.Background(), testPDFJob("job-1"), report); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"analyzing", "extracting", "footnotes", "ocr_check", "ocr_processing", "saving", "finalizing"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestPipeline_TitleDefaultsToFilename(t *testing.T) {
	reader := &fakeReader{ext: &pdftext.Extraction{
		PageCount: 1,
		Pages:     []pdftext.Page{{Number: 1, Text: hebrew(300)}},
	}}
	store := &memStore{}

	p := testPipeline(reader, nil, store)
	if _, err := p.Run(context.Background(), testPDFJob("job-1"), discardProgress); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if store.documents[0].Title != "sefer" {
		t.Errorf("title = %q, want sefer", store.documents[0].Title)
	}
}
