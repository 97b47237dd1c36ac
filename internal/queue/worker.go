package queue

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adimov-eth/transcribe/internal/progress"
	"github.com/adimov-eth/transcribe/internal/storage"
	"github.com/adimov-eth/transcribe/internal/transcription"
	"github.com/adimov-eth/transcribe/internal/types"
)

// Transcriber runs one audio source through the transcription engine
type Transcriber interface {
	Transcribe(source types.AudioSource, opts transcription.TranscribeOptions) (*types.TranscriptionResult, error)
}

// WorkerConfig tunes job processing behavior
type WorkerConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	// RetryValidationErrors keeps permanently invalid jobs (bad
	// format, missing file) on the normal retry path when true.
	RetryValidationErrors bool
}

// DefaultWorkerConfig processes up to 5 jobs at once with a 5s
// progress heartbeat
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:           5,
		PollInterval:          time.Second,
		HeartbeatInterval:     5 * time.Second,
		RetryValidationErrors: true,
	}
}

// WorkerPool leases jobs from the store and processes them with
// bounded concurrency
type WorkerPool struct {
	store       *Store
	transcriber Transcriber
	bus         *progress.Bus
	storage     *storage.Manager
	config      WorkerConfig

	sem      chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorkerPool creates a worker pool over the given collaborators
func NewWorkerPool(
	store *Store,
	transcriber Transcriber,
	bus *progress.Bus,
	storageManager *storage.Manager,
	config WorkerConfig,
) *WorkerPool {
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 5 * time.Second
	}
	return &WorkerPool{
		store:       store,
		transcriber: transcriber,
		bus:         bus,
		storage:     storageManager,
		config:      config,
		sem:         make(chan struct{}, config.Concurrency),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the lease loop
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool (concurrency: %d)", wp.config.Concurrency)
	wp.wg.Add(1)
	go wp.dispatch()
}

// Stop halts leasing and waits for in-flight jobs to finish
func (wp *WorkerPool) Stop() {
	close(wp.stopChan)
	wp.wg.Wait()
	log.Println("Worker pool stopped")
}

// dispatch leases due jobs whenever slots are free
func (wp *WorkerPool) dispatch() {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.stopChan:
			return
		case <-ticker.C:
			if _, err := wp.store.ReclaimStalled(); err != nil {
				log.Printf("Failed to reclaim stalled jobs: %v", err)
			}

			free := wp.config.Concurrency - len(wp.sem)
			if free <= 0 {
				continue
			}

			jobs, err := wp.store.Lease(free)
			if err != nil {
				log.Printf("Failed to lease jobs: %v", err)
				continue
			}

			for _, job := range jobs {
				wp.sem <- struct{}{}
				wp.wg.Add(1)
				go func(job *Job) {
					defer wp.wg.Done()
					defer func() { <-wp.sem }()
					wp.runJob(job)
				}(job)
			}
		}
	}
}

// runJob wraps processJob with panic recovery so a crashing job
// cannot take down the pool
func (wp *WorkerPool) runJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC processing job %s: %v\n%s", job.ID, r, string(debug.Stack()))
			wp.failJob(job, fmt.Errorf("worker panic: %v", r))
		}
	}()

	if err := wp.processJob(job); err != nil {
		wp.failJob(job, err)
	}
}

// processJob handles the complete transcription pipeline for one job
func (wp *WorkerPool) processJob(job *Job) error {
	log.Printf("Processing job %s (source: %s)", job.ID, job.SourceKind)

	wp.publishProgress(job.ID, 10, "Starting transcription...")

	var source types.AudioSource
	var downloadedFile string

	// The downloaded temp file and the uploaded source are deleted
	// exactly once, on success and failure alike
	defer func() {
		if downloadedFile != "" {
			wp.storage.Delete(downloadedFile)
		}
		if job.SourceKind == types.SourceFile {
			wp.storage.Delete(job.SourceRef)
		}
	}()

	if job.SourceKind == types.SourceURL {
		wp.publishProgress(job.ID, 20, "Downloading file...")
		path, err := wp.storage.Download(job.SourceRef)
		if err != nil {
			return err
		}
		downloadedFile = path
		source = types.AudioSource{Name: filepath.Base(path), Path: path}
	} else {
		source = types.AudioSource{Name: filepath.Base(job.SourceRef), Path: job.SourceRef}
	}

	wp.publishProgress(job.ID, 30, "Transcribing audio...")
	stopHeartbeat := wp.startHeartbeat(job.ID, 30)
	defer stopHeartbeat()

	result, err := wp.transcriber.Transcribe(source, transcription.TranscribeOptions{
		Language: job.Options.Language,
	})
	stopHeartbeat()
	if err != nil {
		return err
	}

	rendered, err := transcription.Render(result, job.Options.OutputFormat)
	if err != nil {
		return err
	}
	if job.Options.OutputFormat == types.FormatSRT || job.Options.OutputFormat == types.FormatVTT {
		result.Text = rendered
	}

	if err := wp.store.Complete(job.ID, result); err != nil {
		return err
	}

	wp.bus.Publish(types.ProgressEvent{
		JobID:    job.ID,
		Status:   types.StatusCompleted,
		Progress: 100,
		Message:  "Transcription completed",
		Result:   result,
	})
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

// failJob records the failure and publishes a failed event. Jobs with
// remaining retry budget return to the queue and re-run from scratch.
func (wp *WorkerPool) failJob(job *Job, jobErr error) {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	code := types.ErrorCode(jobErr)
	var storeErr error
	if !wp.config.RetryValidationErrors && types.IsValidationError(code) {
		storeErr = wp.store.Fail(job.ID, jobErr)
	} else {
		storeErr = wp.store.RetryOrFail(job.ID, jobErr)
	}
	if storeErr != nil {
		log.Printf("Failed to record failure for job %s: %v", job.ID, storeErr)
	}

	wp.bus.Publish(types.ProgressEvent{
		JobID:  job.ID,
		Status: types.StatusFailed,
		Error:  jobErr.Error(),
	})
}

// publishProgress records phase progress and fans it out
func (wp *WorkerPool) publishProgress(jobID string, pct int, message string) {
	if err := wp.store.UpdateProgress(jobID, pct); err != nil {
		log.Printf("Failed to update progress for job %s: %v", jobID, err)
	}
	wp.bus.Publish(types.ProgressEvent{
		JobID:    jobID,
		Status:   types.StatusActive,
		Progress: pct,
		Message:  message,
	})
}

// startHeartbeat nudges published progress upward by 10 points per
// interval, capped at 90, so subscribers see liveness during long
// engine calls. The returned stop function tears the timer down and
// is safe to call on every exit path.
func (wp *WorkerPool) startHeartbeat(jobID string, from int) func() {
	current := int32(from)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(wp.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				pct := atomic.LoadInt32(&current)
				if pct >= 90 {
					continue
				}
				pct += 10
				atomic.StoreInt32(&current, pct)
				wp.publishProgress(jobID, int(pct), "Processing...")
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
