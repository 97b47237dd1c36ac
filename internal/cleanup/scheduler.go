package cleanup

import (
	"log"
	"time"

	"github.com/adimov-eth/transcribe/internal/storage"
)

// Scheduler periodically purges stale files from the working directory
type Scheduler struct {
	storage  *storage.Manager
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
}

// NewScheduler creates a scheduler that sweeps every interval,
// deleting files older than maxAge
func NewScheduler(storageManager *storage.Manager, interval, maxAge time.Duration) *Scheduler {
	return &Scheduler{
		storage:  storageManager,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic purge, running one sweep immediately
func (s *Scheduler) Start() {
	log.Println("Running initial stale file purge...")
	s.storage.PurgeOlderThan(s.maxAge)

	ticker := time.NewTicker(s.interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.storage.PurgeOlderThan(s.maxAge)
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	log.Println("Cleanup scheduler stopped")
}
