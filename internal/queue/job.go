// Package queue implements the durable document-ingestion job queue.
//
// Jobs are held in memory and mirrored to a single JSON file on every
// mutation. A lone background worker drains the queue in FIFO order,
// one job at a time.
package queue

import "time"

// TypePDFProcessing is the only job type currently supported.
const TypePDFProcessing = "pdf_processing"

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal returns true if the status will never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the immutable input of a job. Data carries the raw document
// bytes and is base64-encoded in the durable queue file.
type Payload struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	Title    string `json:"title,omitempty"`
	Language string `json:"language"`
	Data     []byte `json:"data"`
}

// Progress is an observability triple updated throughout processing.
// It never drives control flow.
type Progress struct {
	Stage      string `json:"stage"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
}

// DocumentInfo is the pipeline diagnostics attached to a completed job.
type DocumentInfo struct {
	Pages              int      `json:"pages"`
	HasTextLayer       bool     `json:"has_text_layer"`
	NeedsOCR           bool     `json:"needs_ocr"`
	OCRPerformed       bool     `json:"ocr_performed"`
	ParagraphsCreated  int      `json:"paragraphs_created"`
	TotalCharacters    int      `json:"total_characters"`
	Footnotes          int      `json:"footnotes"`
	FootnoteConfidence *float64 `json:"footnote_confidence,omitempty"`
}

// Result is populated exactly once, on the terminal transition.
// Callers must branch on the job status, not on field presence.
type Result struct {
	DocumentID string        `json:"document_id,omitempty"`
	Info       *DocumentInfo `json:"info,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Job is one submitted ingestion request and its tracked lifecycle.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      Status     `json:"status"`
	Payload     Payload    `json:"payload"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job. Payload bytes are shared; the
// payload is immutable after submission so sharing is safe.
func (j *Job) Clone() *Job {
	c := *j
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	if j.Result != nil {
		r := *j.Result
		if j.Result.Info != nil {
			info := *j.Result.Info
			if j.Result.Info.FootnoteConfidence != nil {
				fc := *j.Result.Info.FootnoteConfidence
				info.FootnoteConfidence = &fc
			}
			r.Info = &info
		}
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
