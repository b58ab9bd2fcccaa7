package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"energodoc/internal/domain"
	"energodoc/internal/port"
)

type canonicalRepo struct {
	db *sqlx.DB
}

// NewCanonicalRepo creates a new PostgreSQL-backed CanonicalRepository.
func NewCanonicalRepo(db *sqlx.DB) port.CanonicalRepository {
	return &canonicalRepo{db: db}
}

// SaveVersion appends version current_version+1 and points the submission
// at it. The submission row is locked for the duration so two runs of the
// same submission cannot race on the version number.
func (r *canonicalRepo) SaveVersion(ctx context.Context, v *domain.CanonicalVersion) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("canonicalRepo.SaveVersion begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current int
	err = tx.GetContext(ctx, &current,
		"SELECT current_version FROM submissions WHERE id = $1 FOR UPDATE", v.SubmissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("canonicalRepo.SaveVersion lock: %w", err)
	}

	v.Version = current + 1
	v.CreatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO canonical_versions (submission_id, version, ruleset_version, data, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.SubmissionID, v.Version, v.RulesetVersion, []byte(v.Data), v.CreatedAt)
	if err != nil {
		return fmt.Errorf("canonicalRepo.SaveVersion insert: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE submissions SET current_version = $1, status = $2, last_error = NULL, updated_at = $3
		 WHERE id = $4`,
		v.Version, domain.SubmissionStatusProcessed, v.CreatedAt, v.SubmissionID)
	if err != nil {
		return fmt.Errorf("canonicalRepo.SaveVersion flip: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("canonicalRepo.SaveVersion commit: %w", err)
	}
	return nil
}

func (r *canonicalRepo) GetCurrent(ctx context.Context, submissionID uuid.UUID) (*domain.CanonicalVersion, error) {
	var v domain.CanonicalVersion
	err := r.db.GetContext(ctx, &v,
		`SELECT cv.submission_id, cv.version, cv.ruleset_version, cv.data, cv.created_at
		 FROM canonical_versions cv
		 JOIN submissions s ON s.id = cv.submission_id AND s.current_version = cv.version
		 WHERE cv.submission_id = $1`,
		submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotProcessed
		}
		return nil, fmt.Errorf("canonicalRepo.GetCurrent: %w", err)
	}
	return &v, nil
}

func (r *canonicalRepo) ListVersions(ctx context.Context, submissionID uuid.UUID) ([]domain.CanonicalVersion, error) {
	var out []domain.CanonicalVersion
	err := r.db.SelectContext(ctx, &out,
		`SELECT submission_id, version, ruleset_version, data, created_at
		 FROM canonical_versions WHERE submission_id = $1 ORDER BY version`,
		submissionID)
	if err != nil {
		return nil, fmt.Errorf("canonicalRepo.ListVersions: %w", err)
	}
	return out, nil
}
