package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"energodoc/internal/classifier"
	"energodoc/internal/config"
	"energodoc/internal/domain"
	"energodoc/internal/metrics"
	"energodoc/internal/pipeline"
	"energodoc/internal/port"
)

// SubmitInput is the DTO for an uploaded file.
type SubmitInput struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// Processor runs the extraction pipeline. *pipeline.Runner implements it.
type Processor interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	Readiness(data *domain.CanonicalSourceData) []domain.ReadinessReport
}

// SubmissionService defines the submission lifecycle contract.
type SubmissionService interface {
	// Submit stores a new file, or returns the existing submission with the
	// same content. created is false in the latter case.
	Submit(ctx context.Context, input SubmitInput) (sub *domain.RawSubmission, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error)
	List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error)
	// Process runs one claimed submission. Failures are recorded on the
	// submission row, not returned.
	Process(ctx context.Context, sub *domain.RawSubmission, maxAttempts int)
	Reprocess(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Canonical(ctx context.Context, id uuid.UUID) (*domain.CanonicalVersion, error)
	Versions(ctx context.Context, id uuid.UUID) ([]domain.CanonicalVersion, error)
	Readiness(ctx context.Context, id uuid.UUID) ([]domain.ReadinessReport, error)
}

type submissionService struct {
	subRepo   port.SubmissionRepository
	canonRepo port.CanonicalRepository
	storage   port.ObjectStorage
	processor Processor
	cfg       *config.S3Config
	metrics   *metrics.Metrics
	log       *zap.Logger
	runs      *runRegistry
}

// NewSubmissionService creates a new SubmissionService implementation.
func NewSubmissionService(
	subRepo port.SubmissionRepository,
	canonRepo port.CanonicalRepository,
	storage port.ObjectStorage,
	processor Processor,
	cfg *config.S3Config,
	m *metrics.Metrics,
	log *zap.Logger,
) SubmissionService {
	return &submissionService{
		subRepo:   subRepo,
		canonRepo: canonRepo,
		storage:   storage,
		processor: processor,
		cfg:       cfg,
		metrics:   m,
		log:       log,
		runs:      newRunRegistry(),
	}
}

func (s *submissionService) Submit(ctx context.Context, input SubmitInput) (*domain.RawSubmission, bool, error) {
	fileType, err := classifier.DetectFileType(input.FileName)
	if err != nil {
		return nil, false, err
	}

	maxBytes := s.cfg.MaxFileSizeMB * 1024 * 1024
	if input.Size > maxBytes {
		return nil, false, domain.ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(input.Body, maxBytes+1))
	if err != nil {
		return nil, false, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, false, domain.ErrFileTooLarge
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if existing, err := s.subRepo.GetByHash(ctx, hash); err == nil {
		s.log.Info("submissionService.Submit: identical content already stored",
			zap.String("submission_id", existing.ID.String()))
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	id := uuid.New()
	sub := &domain.RawSubmission{
		ID:          id,
		FileName:    filepath.Base(input.FileName),
		FileType:    fileType,
		ContentType: domain.AllowedFileTypes[fileType],
		SizeBytes:   int64(len(data)),
		ContentHash: hash,
		S3Bucket:    s.cfg.Bucket,
		S3Key:       fmt.Sprintf("submissions/%s/%s.%s", id, hash, fileType),
		Status:      domain.SubmissionStatusQueued,
	}

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      sub.S3Bucket,
		Key:         sub.S3Key,
		Body:        bytes.NewReader(data),
		ContentType: sub.ContentType,
		Size:        sub.SizeBytes,
	}); err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		if delErr := s.storage.Delete(ctx, sub.S3Bucket, sub.S3Key); delErr != nil {
			s.log.Warn("submissionService.Submit: orphaned object", zap.String("key", sub.S3Key), zap.Error(delErr))
		}
		if errors.Is(err, domain.ErrDuplicateSubmission) {
			existing, getErr := s.subRepo.GetByHash(ctx, hash)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.log.Info("submissionService.Submit: queued",
		zap.String("submission_id", sub.ID.String()),
		zap.String("file", sub.FileName),
		zap.Int64("size", sub.SizeBytes))
	return sub, true, nil
}

func (s *submissionService) Get(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	return s.subRepo.GetByID(ctx, id)
}

func (s *submissionService) List(ctx context.Context, offset, limit int) ([]domain.RawSubmission, int, error) {
	return s.subRepo.List(ctx, offset, limit)
}

func (s *submissionService) Process(ctx context.Context, sub *domain.RawSubmission, maxAttempts int) {
	log := s.log.With(zap.String("submission_id", sub.ID.String()), zap.Int("attempt", sub.Attempts))
	ctx, release := s.runs.start(ctx, sub.ID)
	defer release()

	data, err := s.storage.Download(ctx, sub.S3Bucket, sub.S3Key)
	if err != nil {
		s.handleProcessError(ctx, log, sub, fmt.Errorf("downloading submission: %w", err), maxAttempts)
		return
	}

	res, err := s.processor.Run(ctx, pipeline.Input{FileName: sub.FileName, FileType: sub.FileType, Data: data})
	if err != nil {
		s.handleProcessError(ctx, log, sub, err, maxAttempts)
		return
	}
	if ctx.Err() != nil {
		s.handleProcessError(ctx, log, sub, fmt.Errorf("%w: %w", domain.ErrSubmissionCanceled, ctx.Err()), maxAttempts)
		return
	}

	v := &domain.CanonicalVersion{
		SubmissionID:   sub.ID,
		RulesetVersion: res.Data.RulesetVersion,
		Data:           json.RawMessage(res.JSON),
	}
	if err := s.canonRepo.SaveVersion(ctx, v); err != nil {
		s.handleProcessError(ctx, log, sub, fmt.Errorf("saving canonical version: %w", err), maxAttempts)
		return
	}

	sub.Status = domain.SubmissionStatusProcessed
	sub.CurrentVersion = v.Version
	s.metrics.Submission(metrics.SubmissionProcessed)
	log.Info("submissionService.Process: processed",
		zap.Int("version", v.Version),
		zap.Int("values", len(res.Data.Values)))
}

func (s *submissionService) handleProcessError(ctx context.Context, log *zap.Logger, sub *domain.RawSubmission, err error, maxAttempts int) {
	// Cancellation comes from Delete; a deadline is an ordinary failure.
	if errors.Is(ctx.Err(), context.Canceled) {
		s.metrics.Submission(metrics.SubmissionCanceled)
		log.Info("submissionService.Process: canceled, result discarded")
		return
	}

	msg := err.Error()
	status := domain.SubmissionStatusQueued
	outcome := metrics.SubmissionRetry
	if sub.Attempts >= maxAttempts || permanent(err) {
		status = domain.SubmissionStatusFailed
		outcome = metrics.SubmissionFailed
	}
	s.metrics.Submission(outcome)
	log.Warn("submissionService.Process: run failed", zap.String("next_status", string(status)), zap.Error(err))

	// The run context may be gone; the status write must still land.
	if uerr := s.subRepo.UpdateStatus(context.WithoutCancel(ctx), sub.ID, status, &msg); uerr != nil {
		log.Error("submissionService.Process: failed to record status", zap.Error(uerr))
		return
	}
	sub.Status = status
	sub.LastError = &msg
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrUnreadableDocument) ||
		errors.Is(err, domain.ErrNotFound)
}

func (s *submissionService) Reprocess(ctx context.Context, id uuid.UUID) (*domain.RawSubmission, error) {
	if err := s.subRepo.Requeue(ctx, id); err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			if _, getErr := s.subRepo.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
		}
		return nil, err
	}
	s.log.Info("submissionService.Reprocess: requeued", zap.String("submission_id", id.String()))
	return s.subRepo.GetByID(ctx, id)
}

func (s *submissionService) Delete(ctx context.Context, id uuid.UUID) error {
	sub, err := s.subRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.runs.cancel(id) {
		s.log.Info("submissionService.Delete: canceled in-flight run", zap.String("submission_id", id.String()))
	}
	if err := s.storage.Delete(ctx, sub.S3Bucket, sub.S3Key); err != nil {
		s.log.Warn("submissionService.Delete: object not removed", zap.String("key", sub.S3Key), zap.Error(err))
	}
	return s.subRepo.Delete(ctx, id)
}

func (s *submissionService) Canonical(ctx context.Context, id uuid.UUID) (*domain.CanonicalVersion, error) {
	if _, err := s.subRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.canonRepo.GetCurrent(ctx, id)
}

func (s *submissionService) Versions(ctx context.Context, id uuid.UUID) ([]domain.CanonicalVersion, error) {
	if _, err := s.subRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.canonRepo.ListVersions(ctx, id)
}

// Readiness recomputes the reports from the current version with the
// processor's ruleset. Reports are never stored.
func (s *submissionService) Readiness(ctx context.Context, id uuid.UUID) ([]domain.ReadinessReport, error) {
	v, err := s.Canonical(ctx, id)
	if err != nil {
		return nil, err
	}
	var data domain.CanonicalSourceData
	if err := json.Unmarshal(v.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding canonical version %d: %w", v.Version, err)
	}
	return s.processor.Readiness(&data), nil
}
