package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seforimlab/folio/internal/api"
	"github.com/seforimlab/folio/internal/config"
	"github.com/seforimlab/folio/internal/queue"
	"github.com/seforimlab/folio/internal/svcctx"
)

// IngestResponse is the response for a submitted ingestion.
type IngestResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// IngestEndpoint handles POST /api/ingest/pdf with a multipart file upload.
type IngestEndpoint struct{}

var _ api.Endpoint = (*IngestEndpoint)(nil)

func (e *IngestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/ingest/pdf", e.handler
}

func (e *IngestEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit a PDF for ingestion
//	@Description	Upload a PDF to process asynchronously. Returns a job id to poll.
//	@Tags			ingest
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"PDF file to ingest"
//	@Param			title		formData	string	false	"Document title (derived from filename if not provided)"
//	@Param			language	formData	string	false	"Source language (default he)"
//	@Success		202	{object}	IngestResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		413	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/ingest/pdf [post]
func (e *IngestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cfg := config.DefaultConfig()
	if mgr := svcctx.ConfigManagerFrom(r.Context()); mgr != nil {
		cfg = mgr.Get()
	}
	maxBytes := int64(cfg.Ingest.MaxUploadMB) << 20

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file %s is not a PDF", header.Filename))
		return
	}
	if header.Size > maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %dMB limit", cfg.Ingest.MaxUploadMB))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read uploaded file: %v", err))
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = cfg.Ingest.DefaultLanguage
	}

	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not initialized")
		return
	}

	jobID, err := q.Submit(queue.Payload{
		FileName: header.Filename,
		FileSize: header.Size,
		Title:    r.FormValue("title"),
		Language: language,
		Data:     data,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to queue job: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{
		JobID:   jobID,
		Status:  string(queue.StatusQueued),
		Message: "PDF queued for processing",
	})
}

func (e *IngestEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, language string
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Submit a PDF for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			fields := map[string]string{
				"title":    title,
				"language": language,
			}

			var resp IngestResponse
			if err := client.UploadFile(cmd.Context(), "/api/ingest/pdf", "file", args[0], fields, &resp); err != nil {
				return err
			}

			fmt.Printf("Job ID: %s\n", resp.JobID)
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title")
	cmd.Flags().StringVar(&language, "language", "", "Source language (default he)")
	return cmd
}
