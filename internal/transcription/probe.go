package transcription

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adimov-eth/transcribe/internal/types"
)

// MediaProbe reads media durations via ffprobe
type MediaProbe struct {
	runner commandRunner
}

// NewMediaProbe creates a probe using the ffprobe binary on PATH
func NewMediaProbe() *MediaProbe {
	return &MediaProbe{runner: execRunner{}}
}

// Duration returns the media duration in seconds
func (p *MediaProbe) Duration(path string) (float64, error) {
	stdout, stderr, err := p.runner.Run("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, types.WrapError(types.CodeDuration, err,
			"failed to get audio duration: %v (%s)", err, strings.TrimSpace(stderr))
	}

	seconds, err := parseDuration(stdout)
	if err != nil {
		return 0, types.WrapError(types.CodeDuration, err,
			"failed to get audio duration: %v", err)
	}
	return seconds, nil
}

// parseDuration validates ffprobe output as a non-negative number
func parseDuration(output string) (float64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, err
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration: %v", seconds)
	}
	return seconds, nil
}
