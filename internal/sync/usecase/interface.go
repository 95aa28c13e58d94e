package usecase

import (
	"context"

	syncdomain "daybrief-backend/internal/sync/domain"
)

// Embedder is the slice of the vector store the sync engine needs.
type Embedder interface {
	UpsertRecordEmbedding(ctx context.Context, userID, provider, nativeID, title, body string) error
	DeleteRecordEmbedding(ctx context.Context, userID, nativeID string) error
	DeleteUserEmbeddings(ctx context.Context, userID string) error
}

// SyncUsecase runs sync jobs for (user, provider) pairs and owns the data
// they mirror.
type SyncUsecase interface {
	// RunSync executes (or resumes, or replays) the sync job identified by
	// the idempotency key. A key whose job already completed returns the
	// stored outcome without touching the provider.
	RunSync(ctx context.Context, userID, providerName, trigger, idempotencyKey string) (*syncdomain.SyncOutcome, error)
	// Disconnect removes the connection and every record mirrored from it.
	Disconnect(ctx context.Context, userID, providerName string) error
	// RetentionSweep deletes mirrored records older than the configured
	// retention window, across all users, together with their embeddings
	// and the vault entries past the same cutoff.
	RetentionSweep(ctx context.Context) error
	// ReapStuckJobs fails jobs that started but never reached a terminal
	// state within the stale threshold.
	ReapStuckJobs() error
}
