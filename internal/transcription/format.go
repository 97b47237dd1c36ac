package transcription

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adimov-eth/transcribe/internal/types"
)

// Render converts a finished result into the requested output format.
// Subtitle formats use per-segment cues when segments are present and
// fall back to a single cue spanning the whole duration otherwise.
func Render(result *types.TranscriptionResult, format string) (string, error) {
	switch format {
	case "", types.FormatText:
		return result.Text, nil
	case types.FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %v", err)
		}
		return string(data), nil
	case types.FormatSRT:
		return renderSRT(result), nil
	case types.FormatVTT:
		return renderVTT(result), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}

func cues(result *types.TranscriptionResult) []types.Segment {
	if len(result.Segments) > 0 {
		return result.Segments
	}
	var end float64
	if result.Metadata != nil {
		end = result.Metadata.Duration
	}
	return []types.Segment{{Start: 0, End: end, Text: result.Text}}
}

func renderSRT(result *types.TranscriptionResult) string {
	var b strings.Builder
	for i, seg := range cues(result) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func renderVTT(result *types.TranscriptionResult) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range cues(result) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			vttTimestamp(seg.Start), vttTimestamp(seg.End), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func vttTimestamp(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (int, int, int, int) {
	total := int(seconds)
	ms := int((seconds - float64(total)) * 1000)
	return total / 3600, (total % 3600) / 60, total % 60, ms
}
