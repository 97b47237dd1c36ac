package transcription

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adimov-eth/transcribe/internal/types"
)

// DefaultChunkDuration is the segment window in seconds (20 minutes)
const DefaultChunkDuration = 20 * 60

// ChunkInfo describes one time-bounded segment of a larger source
type ChunkInfo struct {
	Path      string
	Index     int
	StartTime float64
	Duration  float64
}

// durationProber reports a media file's duration in seconds
type durationProber interface {
	Duration(path string) (float64, error)
}

// Chunker splits media files into fixed-duration segments with ffmpeg
type Chunker struct {
	chunkDuration float64
	probe         durationProber
	runner        commandRunner
}

// NewChunker creates a chunker with the given segment window in seconds
func NewChunker(chunkDuration float64, probe durationProber) *Chunker {
	if chunkDuration <= 0 {
		chunkDuration = DefaultChunkDuration
	}
	return &Chunker{
		chunkDuration: chunkDuration,
		probe:         probe,
		runner:        execRunner{},
	}
}

// Split cuts the file into sequential stream-copied segments. On a
// per-segment failure it returns the chunks created so far together
// with the error, so the caller's cleanup path can still remove them.
func (ck *Chunker) Split(path string, outputDir string) ([]ChunkInfo, error) {
	duration, err := ck.probe.Duration(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(path), baseName+"_chunks")
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, types.WrapError(types.CodeChunk, err,
			"failed to create chunk directory: %v", err)
	}

	totalChunks := int(math.Ceil(duration / ck.chunkDuration))
	log.Printf("Audio duration: %d minutes, splitting into %d chunks", int(duration/60), totalChunks)

	chunks := make([]ChunkInfo, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		startTime := float64(i) * ck.chunkDuration
		actualDuration := math.Min(ck.chunkDuration, duration-startTime)
		chunkPath := filepath.Join(outputDir, fmt.Sprintf("chunk_%d%s", i, ext))

		_, stderr, err := ck.runner.Run("ffmpeg",
			"-i", path,
			"-ss", formatSeconds(startTime),
			"-t", formatSeconds(actualDuration),
			"-c", "copy",
			chunkPath,
			"-y",
		)
		if err != nil {
			return chunks, types.WrapError(types.CodeChunk, err,
				"failed to create chunk %d: %v (%s)", i+1, err, strings.TrimSpace(stderr))
		}

		chunks = append(chunks, ChunkInfo{
			Path:      chunkPath,
			Index:     i,
			StartTime: startTime,
			Duration:  actualDuration,
		})
		log.Printf("Created chunk %d/%d", i+1, totalChunks)
	}

	return chunks, nil
}

// Cleanup removes segment files and their directory, best-effort.
// Individual deletion failures are logged and skipped.
func (ck *Chunker) Cleanup(chunks []ChunkInfo) {
	for _, chunk := range chunks {
		if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to delete chunk %s: %v", chunk.Path, err)
		}
	}

	if len(chunks) > 0 {
		chunkDir := filepath.Dir(chunks[0].Path)
		if err := os.Remove(chunkDir); err != nil {
			log.Printf("Failed to remove chunk directory %s: %v", chunkDir, err)
		}
	}
}

// FileSizeMB returns the file size in megabytes
func (ck *Chunker) FileSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (1024 * 1024), nil
}

// formatSeconds renders a seconds value for ffmpeg arguments
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
