package queue

import (
	"time"

	"github.com/adimov-eth/transcribe/internal/types"
)

// Job represents one transcription request tracked from submission
// to terminal outcome
type Job struct {
	ID          string                     `json:"id"`
	SourceKind  string                     `json:"sourceKind"`
	SourceRef   string                     `json:"sourceRef"`
	Options     types.JobOptions           `json:"options"`
	Status      string                     `json:"status"`
	Attempt     int                        `json:"attempt"`
	Progress    int                        `json:"progress"`
	Result      *types.TranscriptionResult `json:"result,omitempty"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
	StartedAt   *time.Time                 `json:"startedAt,omitempty"`
	CompletedAt *time.Time                 `json:"completedAt,omitempty"`
}

// NewJob creates a pending job with the caller-supplied id
func NewJob(id, sourceKind, sourceRef string, options types.JobOptions) *Job {
	return &Job{
		ID:         id,
		SourceKind: sourceKind,
		SourceRef:  sourceRef,
		Options:    options,
		Status:     types.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}
