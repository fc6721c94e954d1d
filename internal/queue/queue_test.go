package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeRunner scripts the outcome of each Run call.
type fakeRunner struct {
	mu   sync.Mutex
	runs []string // job ids in processing order

	result *Result
	err    error
	panics bool
	onRun  func(job *Job, report func(Progress))
}

func (f *fakeRunner) Run(ctx context.Context, job *Job, report func(Progress)) (*Result, error) {
	f.mu.Lock()
	f.runs = append(f.runs, job.ID)
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(job, report)
	}
	if f.panics {
		panic("pipeline blew up")
	}
	return f.result, f.err
}

func (f *fakeRunner) ranJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func testQueue(t *testing.T, runner Runner) *Queue {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "queue.json"), nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return New(Config{
		Store:        store,
		Runner:       runner,
		PollInterval: 5 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
	})
}

func TestQueue_Submit(t *testing.T) {
	q := testQueue(t, &fakeRunner{})

	id, err := q.Submit(Payload{FileName: "sefer.pdf", FileSize: 42, Language: "he", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id == "" {
		t.Fatal("Submit() returned empty id")
	}

	job, ok := q.Get(id)
	if !ok {
		t.Fatal("submitted job not found")
	}
	if job.Status != StatusQueued {
		t.Errorf("status = %s, want queued", job.Status)
	}
	if job.Type != TypePDFProcessing {
		t.Errorf("type = %s, want %s", job.Type, TypePDFProcessing)
	}
	if job.CreatedAt.IsZero() {
		t.Error("createdAt not stamped")
	}
	if job.StartedAt != nil || job.CompletedAt != nil || job.Result != nil {
		t.Error("fresh job carries lifecycle fields it should not")
	}
}

func TestQueue_DispatchSuccess(t *testing.T) {
	runner := &fakeRunner{
		result: &Result{DocumentID: "doc-1", Info: &DocumentInfo{Pages: 3, ParagraphsCreated: 3}},
		onRun: func(job *Job, report func(Progress)) {
			report(Progress{Stage: "extracting", Percentage: 30, Message: "Extracting text content..."})
		},
	}
	q := testQueue(t, runner)

	id, _ := q.Submit(Payload{FileName: "sefer.pdf", Data: []byte("x")})
	job, _ := q.store.NextQueued()

	if err := q.dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	got, _ := q.Get(id)
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("terminal job missing timestamps")
	}
	if got.Result == nil || got.Result.DocumentID != "doc-1" {
		t.Errorf("result = %+v", got.Result)
	}
	if got.Progress == nil || got.Progress.Stage != "completed" || got.Progress.Percentage != 100 {
		t.Errorf("final progress = %+v", got.Progress)
	}
}

func TestQueue_DispatchFailureCapturesError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("failed to parse PDF: broken xref")}
	q := testQueue(t, runner)

	id, _ := q.Submit(Payload{FileName: "bad.pdf", Data: []byte("x")})
	job, _ := q.store.NextQueued()

	// A pipeline error lands on the job record, not the loop.
	if err := q.dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch() error = %v, want nil", err)
	}

	got, _ := q.Get(id)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Error != "failed to parse PDF: broken xref" {
		t.Errorf("error not captured verbatim: %+v", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("failed job missing completedAt")
	}
	if got.Progress == nil || got.Progress.Stage != "failed" {
		t.Errorf("final progress = %+v", got.Progress)
	}
}

func TestQueue_DispatchPanicFailsJob(t *testing.T) {
	runner := &fakeRunner{panics: true}
	q := testQueue(t, runner)

	id, _ := q.Submit(Payload{FileName: "sefer.pdf", Data: []byte("x")})
	job, _ := q.store.NextQueued()

	// A panic is a dispatch-level fault: the loop backs off on it.
	if err := q.dispatch(context.Background(), job); err == nil {
		t.Fatal("dispatch() should surface the panic as an error")
	}

	got, _ := q.Get(id)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Error != "internal error: pipeline blew up" {
		t.Errorf("panic not captured: %+v", got.Result)
	}
}

func TestQueue_ProgressPersistedDuringRun(t *testing.T) {
	var observed *Progress
	q := testQueue(t, nil)

	runner := &fakeRunner{
		result: &Result{DocumentID: "doc-1"},
		onRun: func(job *Job, report func(Progress)) {
			report(Progress{Stage: "saving", Percentage: 80, Message: "Saving document and paragraphs..."})
			snap, _ := q.Get(job.ID)
			observed = snap.Progress
		},
	}
	q.runner = runner

	_, _ = q.Submit(Payload{FileName: "sefer.pdf", Data: []byte("x")})
	job, _ := q.store.NextQueued()
	if err := q.dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}

	if observed == nil || observed.Stage != "saving" || observed.Percentage != 80 {
		t.Errorf("mid-run progress not visible to observers: %+v", observed)
	}
}

func TestQueue_RunDrainsFIFO(t *testing.T) {
	done := make(chan struct{}, 3)
	runner := &fakeRunner{result: &Result{DocumentID: "doc"}}
	runner.onRun = func(job *Job, report func(Progress)) {
		done <- struct{}{}
	}
	q := testQueue(t, runner)

	// Force distinct createdAt ordering.
	base := time.Now().UTC()
	times := []time.Time{base, base.Add(time.Millisecond), base.Add(2 * time.Millisecond)}
	i := 0
	q.now = func() time.Time { t := times[i%len(times)]; i++; return t }

	first, _ := q.Submit(Payload{FileName: "1.pdf", Data: []byte("x")})
	second, _ := q.Submit(Payload{FileName: "2.pdf", Data: []byte("x")})
	third, _ := q.Submit(Payload{FileName: "3.pdf", Data: []byte("x")})

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)

	for n := 0; n < 3; n++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not drain the queue")
		}
	}
	cancel()

	// Wait for terminal states to settle.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j3, _ := q.Get(third)
		if j3 != nil && j3.Status.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := []string{first, second, third}
	got := runner.ranJobs()
	if len(got) != 3 {
		t.Fatalf("ran %d jobs, want 3", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("processing order[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestQueue_Cleanup(t *testing.T) {
	q := testQueue(t, &fakeRunner{})

	old := time.Now().UTC().Add(-48 * time.Hour)
	oldJob := &Job{ID: "old", Type: TypePDFProcessing, Status: StatusCompleted, CreatedAt: old, CompletedAt: &old}
	if err := q.store.Put(oldJob); err != nil {
		t.Fatal(err)
	}

	if removed := q.Cleanup(24 * time.Hour); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if len(q.List()) != 0 {
		t.Error("old completed job still listed")
	}
}
