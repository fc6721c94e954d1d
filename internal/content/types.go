package content

import "encoding/json"

// Collection names in the content store.
const (
	CollectionDocuments  = "documents"
	CollectionParagraphs = "paragraphs"
	CollectionStatements = "statements"
)

// Document is the top-level record for one ingested file.
type Document struct {
	Title    string           `json:"title"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata captures provenance and extraction diagnostics.
type DocumentMetadata struct {
	Source       string `json:"source"`
	Filename     string `json:"filename"`
	FileSize     int64  `json:"file_size"`
	TotalPages   int    `json:"total_pages"`
	HasTextLayer bool   `json:"has_text_layer"`
	NeedsOCR     bool   `json:"needs_ocr"`
	TextQuality  string `json:"text_quality"`
	OCRPerformed bool   `json:"ocr_performed"`
	Language     string `json:"language"`
	UploadedAt   string `json:"uploaded_at"`
	JobID        string `json:"job_id"`
}

// Paragraph is one block of text within a document. OrderKey is a string
// holding the paragraph's zero-based position across the whole document.
type Paragraph struct {
	DocID    string            `json:"doc_id"`
	OrderKey string            `json:"order_key"`
	Text     string            `json:"text"`
	Metadata ParagraphMetadata `json:"metadata"`
}

// ParagraphMetadata records where the paragraph text came from.
type ParagraphMetadata struct {
	SourceLanguage string `json:"source_language"`
	PageNumber     int    `json:"page_number"`
	HasTextLayer   bool   `json:"has_text_layer"`
	NeedsOCR       bool   `json:"needs_ocr"`
	OCREnhanced    bool   `json:"ocr_enhanced"`
	AutoGenerated  bool   `json:"auto_generated"`
}

// Statement is the finest-grained text unit, hanging off a paragraph.
// ParagraphID is empty for footnote statements, which attach to the
// document as a whole rather than a specific paragraph.
type Statement struct {
	ParagraphID string            `json:"paragraph_id,omitempty"`
	OrderKey    string            `json:"order_key"`
	Text        string            `json:"text"`
	Metadata    StatementMetadata `json:"metadata"`
}

// StatementMetadata records statement provenance. Footnote fields are
// populated only for statements derived from detected footnotes.
type StatementMetadata struct {
	DocID              string   `json:"doc_id,omitempty"`
	AutoGenerated      bool     `json:"auto_generated"`
	Source             string   `json:"source"`
	PageNumber         int      `json:"page_number"`
	OCREnhanced        bool     `json:"ocr_enhanced"`
	IsFootnote         bool     `json:"is_footnote,omitempty"`
	FootnoteMarker     string   `json:"footnote_marker,omitempty"`
	FootnotePosition   string   `json:"footnote_position,omitempty"`
	FootnoteConfidence float64  `json:"footnote_confidence,omitempty"`
	References         []string `json:"references,omitempty"`
}

// createResponse is the store's envelope for a created item.
type createResponse struct {
	Data struct {
		ID idValue `json:"id"`
	} `json:"data"`
}

// idValue decodes item ids that the store may return as either strings
// or numbers.
type idValue string

func (v *idValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = idValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = idValue(n.String())
	return nil
}
