package queue

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.json")
	s, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s, path
}

func testJob(id string, status Status, createdAt time.Time) *Job {
	return &Job{
		ID:     id,
		Type:   TypePDFProcessing,
		Status: status,
		Payload: Payload{
			FileName: "sefer.pdf",
			FileSize: 1024,
			Language: "he",
			Data:     []byte("%PDF-1.4 fake"),
		},
		CreatedAt: createdAt,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s, _ := testStore(t)

	job := testJob("a", StatusQueued, time.Now().UTC())
	if err := s.Put(job); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := s.Get("a")
	if !ok {
		t.Fatal("Get() did not find stored job")
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %s, want %s", got.Status, StatusQueued)
	}
	if string(got.Payload.Data) != "%PDF-1.4 fake" {
		t.Error("payload bytes did not round-trip")
	}

	// Snapshots must not alias store internals.
	got.Status = StatusFailed
	again, _ := s.Get("a")
	if again.Status != StatusQueued {
		t.Error("mutating a snapshot changed the stored job")
	}
}

func TestStore_CrashRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")

	s1, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s1.Put(testJob("queued", StatusQueued, now)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s1.Put(testJob("failed", StatusFailed, now.Add(time.Second))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	completedAt := now.Add(2 * time.Second)
	if err := s1.Update("failed", func(j *Job) {
		j.CompletedAt = &completedAt
		j.Result = &Result{Error: "failed to parse PDF: broken xref"}
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A new store over the same file sees everything the old one wrote.
	s2, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	if s2.Count() != 2 {
		t.Fatalf("Count() after reopen = %d, want 2", s2.Count())
	}

	failed, ok := s2.Get("failed")
	if !ok {
		t.Fatal("failed job lost across restart")
	}
	if failed.Result == nil || failed.Result.Error != "failed to parse PDF: broken xref" {
		t.Errorf("failed job error not preserved: %+v", failed.Result)
	}
	if failed.CompletedAt == nil || !failed.CompletedAt.Equal(completedAt) {
		t.Errorf("completedAt not preserved: %v", failed.CompletedAt)
	}

	queued, _ := s2.Get("queued")
	if queued.Status != StatusQueued {
		t.Errorf("queued job status after reopen = %s", queued.Status)
	}
}

func TestStore_FileFormat(t *testing.T) {
	s, path := testStore(t)

	if err := s.Put(testJob("a", StatusQueued, time.Now().UTC())); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	var qf struct {
		Jobs []struct {
			ID        string `json:"id"`
			Data      string `json:"data"`
			CreatedAt string `json:"created_at"`
			Payload   struct {
				Data string `json:"data"`
			} `json:"payload"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &qf); err != nil {
		t.Fatalf("queue file is not valid JSON: %v", err)
	}
	if len(qf.Jobs) != 1 {
		t.Fatalf("queue file holds %d jobs, want 1", len(qf.Jobs))
	}

	// Payload bytes are stored base64-encoded.
	decoded, err := base64.StdEncoding.DecodeString(qf.Jobs[0].Payload.Data)
	if err != nil {
		t.Fatalf("payload data is not base64: %v", err)
	}
	if string(decoded) != "%PDF-1.4 fake" {
		t.Errorf("decoded payload = %q", decoded)
	}

	// Timestamps serialize as RFC 3339.
	if _, err := time.Parse(time.RFC3339, qf.Jobs[0].CreatedAt); err != nil {
		t.Errorf("created_at %q is not RFC 3339: %v", qf.Jobs[0].CreatedAt, err)
	}
}

func TestStore_MissingFileIsFreshStore(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "nonexistent.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}

func TestStore_CorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(path, nil); err == nil {
		t.Error("NewStore() on corrupt file should fail")
	} else if !strings.Contains(err.Error(), "parse") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStore_NextQueuedIsFIFO(t *testing.T) {
	s, _ := testStore(t)

	base := time.Now().UTC()
	s.Put(testJob("newer", StatusQueued, base.Add(time.Minute)))
	s.Put(testJob("older", StatusQueued, base))
	s.Put(testJob("busy", StatusProcessing, base.Add(-time.Minute)))

	next, ok := s.NextQueued()
	if !ok {
		t.Fatal("NextQueued() found nothing")
	}
	if next.ID != "older" {
		t.Errorf("NextQueued() = %s, want older", next.ID)
	}
}

func TestStore_UpdateUnknownJob(t *testing.T) {
	s, _ := testStore(t)
	if err := s.Update("missing", func(j *Job) {}); err != ErrNotFound {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteCompletedBefore(t *testing.T) {
	s, path := testStore(t)

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	cutoff := now.Add(-24 * time.Hour)

	oldCompleted := testJob("old-completed", StatusCompleted, old)
	oldCompleted.CompletedAt = &old
	s.Put(oldCompleted)

	oldFailed := testJob("old-failed", StatusFailed, old)
	oldFailed.CompletedAt = &old
	s.Put(oldFailed)

	freshCompleted := testJob("fresh-completed", StatusCompleted, now)
	freshCompleted.CompletedAt = &now
	s.Put(freshCompleted)

	removed := s.DeleteCompletedBefore(cutoff)
	if removed != 1 {
		t.Fatalf("DeleteCompletedBefore() = %d, want 1", removed)
	}

	if _, ok := s.Get("old-completed"); ok {
		t.Error("old completed job should be deleted")
	}
	// Failed jobs are kept for diagnosis regardless of age.
	if _, ok := s.Get("old-failed"); !ok {
		t.Error("old failed job must be retained")
	}
	if _, ok := s.Get("fresh-completed"); !ok {
		t.Error("fresh completed job must be retained")
	}

	// The deletion is durable.
	s2, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	if s2.Count() != 2 {
		t.Errorf("Count() after reopen = %d, want 2", s2.Count())
	}
}
