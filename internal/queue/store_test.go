package queue

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/adimov-eth/transcribe/internal/types"
)

func newTestStore(t *testing.T, config StoreConfig) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"), config)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueueTestJob(t *testing.T, store *Store, id string) *Job {
	t.Helper()
	job := NewJob(id, types.SourceFile, "/tmp/"+id+".mp3", types.JobOptions{Language: "en"})
	if err := store.Enqueue(job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

func leaseOne(t *testing.T, store *Store) *Job {
	t.Helper()
	jobs, err := store.Lease(1)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("leased %d jobs, want 1", len(jobs))
	}
	return jobs[0]
}

func TestNewStoreCreatesDatabaseDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "jobs.db")

	store, err := NewStore(dbPath, DefaultStoreConfig())
	if err != nil {
		t.Fatalf("NewStore with nested path: %v", err)
	}
	defer store.Close()

	enqueueTestJob(t, store, "job-1")
	if _, err := store.GetJob("job-1"); err != nil {
		t.Fatalf("GetJob after nested-path open: %v", err)
	}
}

func TestEnqueueAndGetJob(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")

	job, err := store.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.StatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.Attempt != 0 {
		t.Errorf("attempt = %d, want 0", job.Attempt)
	}
	if job.Options.Language != "en" {
		t.Errorf("options not round-tripped: %+v", job.Options)
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	if _, err := store.GetJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestLeaseMarksActive(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")

	leased := leaseOne(t, store)
	if leased.Status != types.StatusActive {
		t.Errorf("leased status = %q, want active", leased.Status)
	}
	if leased.StartedAt == nil {
		t.Error("startedAt not recorded")
	}

	// A second lease finds nothing
	jobs, err := store.Lease(5)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("re-leased %d jobs, want 0", len(jobs))
	}
}

func TestLeaseRespectsLimit(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	for i := 0; i < 5; i++ {
		enqueueTestJob(t, store, fmt.Sprintf("job-%d", i))
	}

	jobs, err := store.Lease(3)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("leased %d jobs, want 3", len(jobs))
	}
}

func TestCompleteStoresResult(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")
	leaseOne(t, store)

	result := &types.TranscriptionResult{
		Text:     "done",
		Metadata: &types.Metadata{Duration: 10, Language: "en", Model: "whisper-1"},
	}
	if err := store.Complete("job-1", result); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	job, err := store.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if job.Result == nil || job.Result.Text != "done" {
		t.Errorf("result not stored: %+v", job.Result)
	}
	if job.CompletedAt == nil {
		t.Error("completedAt not recorded")
	}
}

func TestCompleteRequiresActiveJob(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")

	// Still pending: completing must not work, keeping the state
	// machine monotonic
	if err := store.Complete("job-1", &types.TranscriptionResult{}); err == nil {
		t.Fatal("expected error completing a pending job")
	}
}

func TestTerminalJobCannotBeReleased(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")
	leaseOne(t, store)
	if err := store.Complete("job-1", &types.TranscriptionResult{Text: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// A completed job is never delivered again
	jobs, err := store.Lease(5)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("leased a terminal job")
	}

	job, _ := store.GetJob("job-1")
	if job.Status != types.StatusCompleted {
		t.Errorf("terminal status changed to %q", job.Status)
	}
}

func TestRetryOrFailBacksOffThenFailsPermanently(t *testing.T) {
	config := DefaultStoreConfig()
	config.BackoffBase = 20 * time.Millisecond
	store := newTestStore(t, config)
	enqueueTestJob(t, store, "job-1")

	jobErr := errors.New("API_ERROR: transcription failed")

	// Attempt 1 fails: back to pending with backoff
	leaseOne(t, store)
	if err := store.RetryOrFail("job-1", jobErr); err != nil {
		t.Fatalf("RetryOrFail: %v", err)
	}

	job, _ := store.GetJob("job-1")
	if job.Status != types.StatusPending {
		t.Fatalf("status after first failure = %q, want pending", job.Status)
	}
	if job.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", job.Attempt)
	}

	// Not eligible until the backoff elapses
	if jobs, _ := store.Lease(1); len(jobs) != 0 {
		t.Fatal("job leased before backoff elapsed")
	}
	time.Sleep(30 * time.Millisecond)

	// Attempt 2 fails: longer backoff
	leaseOne(t, store)
	if err := store.RetryOrFail("job-1", jobErr); err != nil {
		t.Fatalf("RetryOrFail: %v", err)
	}
	if jobs, _ := store.Lease(1); len(jobs) != 0 {
		t.Fatal("job leased before second backoff elapsed")
	}
	time.Sleep(50 * time.Millisecond)

	// Attempt 3 fails: terminal
	leaseOne(t, store)
	if err := store.RetryOrFail("job-1", jobErr); err != nil {
		t.Fatalf("RetryOrFail: %v", err)
	}

	job, _ = store.GetJob("job-1")
	if job.Status != types.StatusFailed {
		t.Fatalf("status after third failure = %q, want failed", job.Status)
	}
	if job.Attempt != 3 {
		t.Errorf("attempt = %d, want 3", job.Attempt)
	}
	if job.Error == "" {
		t.Error("error message not recorded")
	}
	if job.CompletedAt == nil {
		t.Error("completedAt not recorded")
	}
}

func TestFailIsTerminalImmediately(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")
	leaseOne(t, store)

	if err := store.Fail("job-1", errors.New("FORMAT_ERROR: unsupported format")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	job, _ := store.GetJob("job-1")
	if job.Status != types.StatusFailed {
		t.Errorf("status = %q, want failed", job.Status)
	}
}

func TestRemove(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")

	removed, err := store.Remove("job-1")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v; want true", removed, err)
	}

	removed, err = store.Remove("job-1")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v; want false", removed, err)
	}
}

func TestListActiveAndWaiting(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")
	enqueueTestJob(t, store, "job-2")
	enqueueTestJob(t, store, "job-3")

	if _, err := store.Lease(1); err != nil {
		t.Fatalf("Lease: %v", err)
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	waiting, err := store.ListWaiting()
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}

	if len(active) != 1 || len(waiting) != 2 {
		t.Errorf("active = %d, waiting = %d; want 1, 2", len(active), len(waiting))
	}
}

func TestRetentionEvictsOldestCompleted(t *testing.T) {
	config := DefaultStoreConfig()
	config.KeepCompleted = 3
	store := newTestStore(t, config)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("job-%d", i)
		enqueueTestJob(t, store, id)
		leaseOne(t, store)
		if err := store.Complete(id, &types.TranscriptionResult{Text: id}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		time.Sleep(5 * time.Millisecond) // distinct completion times
	}

	// Oldest two are gone, newest three remain
	for _, id := range []string{"job-0", "job-1"} {
		if _, err := store.GetJob(id); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"job-2", "job-3", "job-4"} {
		if _, err := store.GetJob(id); err != nil {
			t.Errorf("%s should be retained: %v", id, err)
		}
	}
}

func TestRetentionEvictsOldestFailed(t *testing.T) {
	config := DefaultStoreConfig()
	config.KeepFailed = 2
	store := newTestStore(t, config)

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("job-%d", i)
		enqueueTestJob(t, store, id)
		leaseOne(t, store)
		if err := store.Fail(id, errors.New("boom")); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := store.GetJob("job-0"); !errors.Is(err, ErrJobNotFound) {
		t.Error("job-0 should have been evicted")
	}
	if _, err := store.GetJob("job-3"); err != nil {
		t.Errorf("job-3 should be retained: %v", err)
	}
}

func TestReclaimStalled(t *testing.T) {
	config := DefaultStoreConfig()
	config.VisibilityTimeout = 20 * time.Millisecond
	store := newTestStore(t, config)
	enqueueTestJob(t, store, "job-1")
	leaseOne(t, store)

	// Before the window expires nothing is reclaimed
	reclaimed, err := store.ReclaimStalled()
	if err != nil {
		t.Fatalf("ReclaimStalled: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("reclaimed = %d, want 0", reclaimed)
	}

	time.Sleep(30 * time.Millisecond)

	reclaimed, err = store.ReclaimStalled()
	if err != nil {
		t.Fatalf("ReclaimStalled: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}

	// The stalled job is leasable again
	leased := leaseOne(t, store)
	if leased.ID != "job-1" {
		t.Errorf("leased %s, want job-1", leased.ID)
	}
}

func TestUpdateProgress(t *testing.T) {
	store := newTestStore(t, DefaultStoreConfig())
	enqueueTestJob(t, store, "job-1")
	leaseOne(t, store)

	if err := store.UpdateProgress("job-1", 40); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	job, _ := store.GetJob("job-1")
	if job.Progress != 40 {
		t.Errorf("progress = %d, want 40", job.Progress)
	}
}
