package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/seforimlab/folio/internal/api"
	"github.com/seforimlab/folio/internal/queue"
	"github.com/seforimlab/folio/internal/svcctx"
)

// JobView is the API shape of a job. The raw document bytes are withheld;
// only payload metadata is exposed.
type JobView struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      queue.Status    `json:"status"`
	FileName    string          `json:"file_name"`
	FileSize    int64           `json:"file_size"`
	Title       string          `json:"title,omitempty"`
	Language    string          `json:"language"`
	Progress    *queue.Progress `json:"progress,omitempty"`
	Result      *queue.Result   `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func viewOf(j *queue.Job) JobView {
	return JobView{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		FileName:    j.Payload.FileName,
		FileSize:    j.Payload.FileSize,
		Title:       j.Payload.Title,
		Language:    j.Payload.Language,
		Progress:    j.Progress,
		Result:      j.Result,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// ListJobsResponse is the response for the job list endpoint.
type ListJobsResponse struct {
	Jobs  []JobView `json:"jobs"`
	Count int       `json:"count"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List ingestion jobs
//	@Tags		jobs
//	@Produce	json
//	@Param		status	query		string	false	"Filter by status (queued, processing, completed, failed)"
//	@Success	200		{object}	ListJobsResponse
//	@Failure	503		{object}	ErrorResponse
//	@Router		/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not initialized")
		return
	}

	statusFilter := queue.Status(r.URL.Query().Get("status"))

	views := make([]JobView, 0)
	for _, job := range q.List() {
		if statusFilter != "" && job.Status != statusFilter {
			continue
		}
		views = append(views, viewOf(job))
	}

	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: views, Count: len(views)})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List ingestion jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			path := "/api/jobs"
			if status != "" {
				path += "?status=" + status
			}

			var resp ListJobsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get one ingestion job
//	@Tags		jobs
//	@Produce	json
//	@Param		id	path		string	true	"Job ID"
//	@Success	200	{object}	JobView
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not initialized")
		return
	}

	id := r.PathValue("id")
	job, ok := q.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}

	writeJSON(w, http.StatusOK, viewOf(job))
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Get one ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			var resp JobView
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CleanupRequest is the request body for the cleanup endpoint.
type CleanupRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// CleanupResponse reports how many jobs were removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// CleanupJobsEndpoint handles POST /api/jobs/cleanup.
type CleanupJobsEndpoint struct{}

func (e *CleanupJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/cleanup", e.handler
}

func (e *CleanupJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete old completed jobs
//	@Description	Removes completed jobs older than max_age_hours. Failed jobs are always kept.
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CleanupRequest	false	"Retention horizon (default 24h)"
//	@Success		200		{object}	CleanupResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs/cleanup [post]
func (e *CleanupJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := svcctx.QueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "job queue not initialized")
		return
	}

	req := CleanupRequest{MaxAgeHours: 24}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}
	if req.MaxAgeHours <= 0 {
		writeError(w, http.StatusBadRequest, "max_age_hours must be positive")
		return
	}

	removed := q.Cleanup(time.Duration(req.MaxAgeHours) * time.Hour)
	writeJSON(w, http.StatusOK, CleanupResponse{Removed: removed})
}

func (e *CleanupJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var maxAgeHours int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old completed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			var resp CleanupResponse
			if err := client.Post(cmd.Context(), "/api/jobs/cleanup", CleanupRequest{MaxAgeHours: maxAgeHours}, &resp); err != nil {
				return err
			}

			fmt.Printf("Removed: %d\n", resp.Removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 24, "Delete completed jobs older than this")
	return cmd
}
