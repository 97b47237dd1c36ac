package storage

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// downloadTimeout bounds how long a remote fetch may take
const downloadTimeout = 30 * time.Second

// Download streams a remote resource into the working directory under
// a collision-free name, enforcing the size ceiling during the copy.
// The caller owns the returned path and must delete it when done.
func (m *Manager) Download(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %v", err)
	}

	ext := filepath.Ext(parsed.Path)
	if ext == "" {
		ext = ".tmp"
	}
	filename := fmt.Sprintf("download_%s%s", uuid.New().String(), ext)
	destPath := m.Path(filename)

	client := &http.Client{Timeout: downloadTimeout}
	resp, err := client.Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("download failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: http %s", resp.Status)
	}
	if resp.ContentLength > 0 && !m.ValidateSize(resp.ContentLength) {
		return "", fmt.Errorf("download too large: %d bytes (max %.0fMB)",
			resp.ContentLength, m.MaxFileSizeMB())
	}

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %v", err)
	}

	// Read one byte past the limit so an oversized stream is detected
	// even when the server omits Content-Length
	written, err := io.Copy(out, io.LimitReader(resp.Body, m.maxFileSize+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		m.Delete(destPath)
		return "", fmt.Errorf("download failed: %v", err)
	}
	if written > m.maxFileSize {
		m.Delete(destPath)
		return "", fmt.Errorf("download too large: exceeds %.0fMB", m.MaxFileSizeMB())
	}

	return destPath, nil
}
