package domain

import "context"

// Ledger gates how many generations a user may run per day.
type Ledger interface {
	// CheckAndReserve verifies the caller has quota left for today,
	// creating the record lazily and resetting it across the day
	// boundary. Fails with KindResourceExhausted at the limit.
	CheckAndReserve(ctx context.Context, userID string) error
	// Commit records one consumed generation. Called only after the
	// artifact has been durably stored; implementations must increment
	// atomically, never read-modify-write.
	Commit(ctx context.Context, userID string) error
	// Usage reports the caller's current quota record.
	Usage(ctx context.Context, userID string) (QuotaRecord, error)
}

// GenerationProvider submits jobs to the external image-generation API and
// polls them to a terminal state.
type GenerationProvider interface {
	Submit(ctx context.Context, req GenerationRequest) (JobHandle, error)
	// AwaitCompletion polls the job until it succeeds, fails, or the
	// bounded polling budget is exhausted. On success the returned
	// output URIs are non-empty.
	AwaitCompletion(ctx context.Context, handle JobHandle) ([]string, error)
}

// ArtifactWriter fetches provider output bytes and persists them durably,
// returning a retrievable URL.
type ArtifactWriter interface {
	Persist(ctx context.Context, sourceURL, ownerID string) (StoredImage, error)
}

// RecordRepository persists completed generations and serves the gallery.
type RecordRepository interface {
	Save(ctx context.Context, rec *GenerationRecord) error
	// ListByOwner returns the owner's records ordered by creation time
	// descending. Limit is capped server-side; offset makes listing
	// restartable.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]GenerationRecord, error)
}
