package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adimov-eth/transcribe/internal/types"
)

// ErrJobNotFound is returned when a job id is unknown to the store
var ErrJobNotFound = errors.New("job not found")

// StoreConfig tunes retry, visibility and retention behavior
type StoreConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	VisibilityTimeout time.Duration
	KeepCompleted     int
	KeepFailed        int
}

// DefaultStoreConfig matches the queue semantics of the service:
// 3 total attempts with exponential backoff from 2s, and bounded
// history of 100 completed / 50 failed records
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		VisibilityTimeout: 5 * time.Minute,
		KeepCompleted:     100,
		KeepFailed:        50,
	}
}

// Store is a durable SQLite-backed job queue with lease/ack/retry
// semantics. It is the single source of truth for job state; workers
// never mutate status fields directly.
type Store struct {
	db     *sql.DB
	config StoreConfig
}

// NewStore opens (or creates) the job database at dbPath, creating
// the parent directory if needed
func NewStore(dbPath string, config StoreConfig) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		options TEXT NOT NULL,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		progress INTEGER NOT NULL DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME,
		available_at DATETIME NOT NULL,
		lease_expires_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, available_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs(completed_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %v", err)
	}

	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 2 * time.Second
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 5 * time.Minute
	}

	return &Store{db: db, config: config}, nil
}

// Enqueue inserts a new pending job under its caller-supplied id
func (s *Store) Enqueue(job *Job) error {
	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal job options: %v", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
	INSERT INTO jobs (id, source_kind, source_ref, options, status, attempt, progress, created_at, available_at)
	VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		job.ID, job.SourceKind, job.SourceRef, string(options), types.StatusPending, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %v", err)
	}

	log.Printf("Job %s added to queue", job.ID)
	return nil
}

// Lease claims up to limit due pending jobs, marking them active and
// starting their visibility window. Claimed jobs must be acknowledged
// via Complete, RetryOrFail or Fail before the window expires.
func (s *Store) Lease(limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin lease: %v", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows, err := tx.Query(`
	SELECT id FROM jobs
	WHERE status = ? AND available_at <= ?
	ORDER BY created_at LIMIT ?`,
		types.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending jobs: %v", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job id: %v", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending jobs: %v", err)
	}

	leaseExpiry := now.Add(s.config.VisibilityTimeout)
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		res, err := tx.Exec(`
		UPDATE jobs SET status = ?, started_at = ?, lease_expires_at = ?
		WHERE id = ? AND status = ?`,
			types.StatusActive, now, leaseExpiry, id, types.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to lease job %s: %v", id, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue // claimed by another worker
		}

		job, err := scanJob(tx.QueryRow(selectJobSQL+" WHERE id = ?", id))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lease: %v", err)
	}
	return jobs, nil
}

// Complete marks an active job as completed and stores its result
func (s *Store) Complete(id string, result *types.TranscriptionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %v", err)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
	UPDATE jobs SET status = ?, progress = 100, result = ?, completed_at = ?, lease_expires_at = NULL
	WHERE id = ? AND status = ?`,
		types.StatusCompleted, string(resultJSON), now, id, types.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to complete job: %v", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrJobNotFound
	}

	s.trimHistory(types.StatusCompleted, s.config.KeepCompleted)
	return nil
}

// RetryOrFail increments the attempt counter and either returns the
// job to pending with an exponential backoff delay or, once the
// attempt budget is spent, marks it failed terminally.
func (s *Store) RetryOrFail(id string, jobErr error) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}

	attempt := job.Attempt + 1
	now := time.Now().UTC()

	if attempt < s.config.MaxAttempts {
		backoff := s.config.BackoffBase * time.Duration(1<<(attempt-1))
		_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, attempt = ?, available_at = ?, lease_expires_at = NULL
		WHERE id = ? AND status = ?`,
			types.StatusPending, attempt, now.Add(backoff), id, types.StatusActive)
		if err != nil {
			return fmt.Errorf("failed to schedule retry: %v", err)
		}
		log.Printf("Job %s attempt %d failed, retrying in %s: %v", id, attempt, backoff, jobErr)
		return nil
	}

	if err := s.markFailed(id, attempt, jobErr, now); err != nil {
		return err
	}
	log.Printf("Job %s failed permanently after %d attempts: %v", id, attempt, jobErr)
	return nil
}

// Fail marks a job failed terminally regardless of remaining attempts
func (s *Store) Fail(id string, jobErr error) error {
	job, err := s.GetJob(id)
	if err != nil {
		return err
	}
	if err := s.markFailed(id, job.Attempt+1, jobErr, time.Now().UTC()); err != nil {
		return err
	}
	log.Printf("Job %s failed permanently (non-retryable): %v", id, jobErr)
	return nil
}

func (s *Store) markFailed(id string, attempt int, jobErr error, now time.Time) error {
	res, err := s.db.Exec(`
	UPDATE jobs SET status = ?, attempt = ?, error = ?, completed_at = ?, lease_expires_at = NULL
	WHERE id = ? AND status = ?`,
		types.StatusFailed, attempt, jobErr.Error(), now, id, types.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %v", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrJobNotFound
	}

	s.trimHistory(types.StatusFailed, s.config.KeepFailed)
	return nil
}

// UpdateProgress records coarse phase progress for an active job
func (s *Store) UpdateProgress(id string, progress int) error {
	_, err := s.db.Exec(`UPDATE jobs SET progress = ? WHERE id = ? AND status = ?`,
		progress, id, types.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to update progress: %v", err)
	}
	return nil
}

// GetJob returns a job by id, or ErrJobNotFound
func (s *Store) GetJob(id string) (*Job, error) {
	job, err := scanJob(s.db.QueryRow(selectJobSQL+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// Remove deletes a job in any state, reporting whether it existed.
// An already-leased job cannot be interrupted mid-flight; removal
// only prevents future leasing.
func (s *Store) Remove(id string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove job: %v", err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		log.Printf("Job %s removed", id)
	}
	return affected > 0, nil
}

// ListActive returns jobs currently being processed
func (s *Store) ListActive() ([]*Job, error) {
	return s.listByStatus(types.StatusActive)
}

// ListWaiting returns pending jobs, including those in backoff
func (s *Store) ListWaiting() ([]*Job, error) {
	return s.listByStatus(types.StatusPending)
}

// ReclaimStalled returns active jobs whose visibility window has
// expired to pending so another worker can lease them
func (s *Store) ReclaimStalled() (int, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
	UPDATE jobs SET status = ?, lease_expires_at = NULL, available_at = ?
	WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		types.StatusPending, now, types.StatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stalled jobs: %v", err)
	}

	affected, _ := res.RowsAffected()
	if affected > 0 {
		log.Printf("Reclaimed %d stalled jobs", affected)
	}
	return int(affected), nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// trimHistory evicts the oldest terminal records beyond the cap,
// FIFO by completion time
func (s *Store) trimHistory(status string, keep int) {
	if keep <= 0 {
		return
	}
	_, err := s.db.Exec(`
	DELETE FROM jobs WHERE status = ? AND id NOT IN (
		SELECT id FROM jobs WHERE status = ? ORDER BY completed_at DESC, id DESC LIMIT ?
	)`, status, status, keep)
	if err != nil {
		log.Printf("Failed to trim %s history: %v", status, err)
	}
}

func (s *Store) listByStatus(status string) ([]*Job, error) {
	rows, err := s.db.Query(selectJobSQL+" WHERE status = ? ORDER BY created_at", status)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %v", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJobSQL = `
SELECT id, source_kind, source_ref, options, status, attempt, progress,
       result, error, created_at, started_at, completed_at
FROM jobs`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		options     string
		result      sql.NullString
		jobError    sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(&job.ID, &job.SourceKind, &job.SourceRef, &options,
		&job.Status, &job.Attempt, &job.Progress, &result, &jobError,
		&job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(options), &job.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job options: %v", err)
	}
	if result.Valid && result.String != "" {
		job.Result = &types.TranscriptionResult{}
		if err := json.Unmarshal([]byte(result.String), job.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %v", err)
		}
	}
	if jobError.Valid {
		job.Error = jobError.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}
