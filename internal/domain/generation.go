package domain

import "time"

// MaxPromptLength bounds the user prompt before any external call is made.
const MaxPromptLength = 500

// GenerationRequest is the caller's input for one image generation. It is
// never persisted.
type GenerationRequest struct {
	UserID         string
	Prompt         string
	Style          string
	NegativePrompt string
}

// JobStatus is the normalized lifecycle of a provider generation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// JobHandle identifies a job submitted to the generation provider. The job
// itself lives in the provider; only the id crosses the boundary.
type JobHandle struct {
	ID string
}

// GenerationRecord is the persisted result of a completed generation.
// Immutable once created; listed per owner for the gallery.
type GenerationRecord struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Prompt     string    `json:"prompt"`
	Style      string    `json:"style,omitempty"`
	ImageURL   string    `json:"image_url"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// StoredImage points at an artifact persisted into durable storage. URL is
// a time-bounded signed read URL, not the provider's transient output URL.
type StoredImage struct {
	Key string
	URL string
}
