package types

// Job status constants
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Source kind constants
const (
	SourceFile = "file"
	SourceURL  = "url"
)

// Output format constants
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

// AudioSource is a local file ready for processing
type AudioSource struct {
	Name string
	Path string
}

// TranscriptionResult represents the output of one transcription
type TranscriptionResult struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Segment represents a timestamped portion of the transcript
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Metadata carries details about how the transcript was produced
type Metadata struct {
	Duration float64 `json:"duration"`
	Language string  `json:"language"`
	Model    string  `json:"model"`
}

// JobOptions are per-job settings supplied at submission time
type JobOptions struct {
	Language     string `json:"language,omitempty"`
	OutputFormat string `json:"outputFormat,omitempty"`
}

// ProgressEvent is an ephemeral per-job status update
type ProgressEvent struct {
	JobID    string               `json:"jobId"`
	Status   string               `json:"status"`
	Progress int                  `json:"progress,omitempty"`
	Message  string               `json:"message,omitempty"`
	Result   *TranscriptionResult `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Terminal reports whether the event's status ends the job lifecycle
func (e ProgressEvent) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
