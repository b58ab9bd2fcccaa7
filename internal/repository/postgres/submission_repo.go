package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"energodoc/internal/domain"
	"energodoc/internal/port"
)

type submissionRepo struct {
	db *sqlx.DB
}

// NewSubmissionRepo creates a new PostgreSQL-backed SubmissionRepository.
func NewSubmissionRepo(db *sqlx.DB) port.SubmissionRepository {
	return &submissionRepo{db: db}
}

const submissionColumns = `id, file_name, file_type, content_type, size_bytes, content_hash,
	s3_bucket, s3_key, status, attempts, last_error, current_version, created_at, updated_at`

func (r *submissionRepo) Create(ctx context.Context, sub *domain.RawSubmission) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.FileName, sub.FileType, sub.ContentType, sub.SizeBytes, sub.ContentHash,
		sub.S3Bucket, sub.S3Key, sub.Status, sub.Attempts, sub.LastError, sub.CurrentVersion,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") && strings.Contains(err.Error(), "content_hash") {
			return domain.ErrDuplicateSubmission
		}
		return fmt.Errorf("submissionRepo.Create: %w", err)
	}
	return nil
}

func (r *submissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	var sub domain.RawSubmission
	err := r.db.GetContext(ctx, &sub,
		"SELECT "+submissionColumns+" FROM submissions WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("submissionRepo.GetByID: %w", err)
	}
	return &sub, nil
}

func (r *submissionRepo) GetByHash(ctx context.Context, contentHash string) (*domain.RawSubmission, error) {
	var sub domain.RawSubmission
	err := r.db.GetContext(ctx, &sub,
		"SELECT "+submissionColumns+" FROM submissions WHERE content_hash = $1", contentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("submissionRepo.GetByHash: %w", err)
	}
	return &sub, nil
}

func (r *submissionRepo) List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM submissions"); err != nil {
		return nil, 0, fmt.Errorf("submissionRepo.List count: %w", err)
	}

	var subs []domain.RawSubmission
	err := r.db.SelectContext(ctx, &subs,
		`SELECT `+submissionColumns+` FROM submissions
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("submissionRepo.List: %w", err)
	}
	return subs, total, nil
}

func (r *submissionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, lastErr *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4`,
		status, lastErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("submissionRepo.UpdateStatus: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimQueued locks queued rows with SKIP LOCKED so concurrent workers never
// claim the same submission. A processing row not touched since staleBefore
// belongs to a run that died and is claimed like a queued one.
func (r *submissionRepo) ClaimQueued(ctx context.Context, limit int, staleBefore time.Time) ([]domain.RawSubmission, error) {
	var subs []domain.RawSubmission
	err := r.db.SelectContext(ctx, &subs,
		`UPDATE submissions SET status = $1, attempts = attempts + 1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM submissions
			WHERE status = $3 OR (status = $1 AND updated_at < $5)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+submissionColumns,
		domain.SubmissionStatusProcessing, time.Now().UTC(), domain.SubmissionStatusQueued, limit, staleBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("submissionRepo.ClaimQueued: %w", err)
	}
	return subs, nil
}

func (r *submissionRepo) Requeue(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE submissions SET status = $1, attempts = 0, last_error = NULL, updated_at = $2
		 WHERE id = $3 AND status <> $4`,
		domain.SubmissionStatusQueued, time.Now().UTC(), id, domain.SubmissionStatusProcessing)
	if err != nil {
		return fmt.Errorf("submissionRepo.Requeue: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInvalidStatus
	}
	return nil
}

func (r *submissionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM submissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("submissionRepo.Delete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
