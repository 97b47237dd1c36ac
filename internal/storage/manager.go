package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// DefaultMaxFileSize caps uploads and downloads at 500MB
const DefaultMaxFileSize = 500 * 1024 * 1024

// Manager owns the working directory shared by all jobs in a process
type Manager struct {
	workDir     string
	maxFileSize int64
}

// NewManager creates a storage manager rooted at workDir
func NewManager(workDir string, maxFileSize int64) *Manager {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Manager{
		workDir:     workDir,
		maxFileSize: maxFileSize,
	}
}

// EnsureDir creates the working directory if it does not exist
func (m *Manager) EnsureDir() error {
	if err := os.MkdirAll(m.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %v", err)
	}
	log.Printf("Working directory ready: %s", m.workDir)
	return nil
}

// Path returns the full path for a filename inside the working directory
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.workDir, filename)
}

// Delete removes a file, logging and swallowing failures since the
// file may already be gone
func (m *Manager) Delete(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to delete file %s: %v", path, err)
		}
		return
	}
	log.Printf("Deleted file: %s", path)
}

// ValidateSize reports whether a payload fits under the upload ceiling
func (m *Manager) ValidateSize(size int64) bool {
	return size <= m.maxFileSize
}

// MaxFileSize returns the upload ceiling in bytes
func (m *Manager) MaxFileSize() int64 {
	return m.maxFileSize
}

// MaxFileSizeMB returns the upload ceiling in megabytes
func (m *Manager) MaxFileSizeMB() float64 {
	return float64(m.maxFileSize) / (1024 * 1024)
}

// PurgeOlderThan deletes working-directory files whose modification
// time exceeds the age threshold, returning how many were removed
func (m *Manager) PurgeOlderThan(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		log.Printf("Failed to read working directory: %v", err)
		return 0
	}

	now := time.Now()
	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			path := filepath.Join(m.workDir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("Failed to delete old file %s: %v", path, err)
				continue
			}
			deleted++
			log.Printf("Deleted stale file: %s (age: %s)",
				entry.Name(), now.Sub(info.ModTime()).Round(time.Minute))
		}
	}

	if deleted > 0 {
		log.Printf("Purge complete: %d files deleted", deleted)
	}
	return deleted
}
