package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"energodoc/internal/domain"
)

// SubmissionRepository defines the contract for raw submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.RawSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error)
	GetByHash(ctx context.Context, contentHash string) (*domain.RawSubmission, error)
	List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, lastErr *string) error
	// ClaimQueued moves up to limit queued submissions to processing and
	// increments their attempt counters. Rows left in processing since before
	// staleBefore are claimed again. Concurrent callers never claim the same
	// row.
	ClaimQueued(ctx context.Context, limit int, staleBefore time.Time) ([]domain.RawSubmission, error)
	// Requeue puts a submission back in the queue with a fresh attempt budget.
	Requeue(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CanonicalRepository persists versioned canonical records.
type CanonicalRepository interface {
	// SaveVersion inserts the next version and makes it current in one
	// transaction, filling v.Version.
	SaveVersion(ctx context.Context, v *domain.CanonicalVersion) error
	GetCurrent(ctx context.Context, submissionID uuid.UUID) (*domain.CanonicalVersion, error)
	ListVersions(ctx context.Context, submissionID uuid.UUID) ([]domain.CanonicalVersion, error)
}
