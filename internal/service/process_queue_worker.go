package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"energodoc/internal/port"
)

// ProcessQueueConfig holds settings for the processing queue worker.
type ProcessQueueConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	Concurrency  int
	Timeout      time.Duration
	// StaleAfter is how long a submission may sit in processing before
	// another poll reclaims it. Values not above Timeout become twice Timeout.
	StaleAfter time.Duration
}

// ProcessQueueWorker polls for queued submissions and dispatches them for processing.
type ProcessQueueWorker struct {
	subRepo    port.SubmissionRepository
	subService SubmissionService
	cfg        ProcessQueueConfig
	log        *zap.Logger
	wg         sync.WaitGroup
}

// NewProcessQueueWorker creates a new ProcessQueueWorker.
func NewProcessQueueWorker(subRepo port.SubmissionRepository, subService SubmissionService, cfg ProcessQueueConfig, log *zap.Logger) *ProcessQueueWorker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.StaleAfter <= cfg.Timeout {
		cfg.StaleAfter = 2 * cfg.Timeout
	}
	return &ProcessQueueWorker{
		subRepo:    subRepo,
		subService: subService,
		cfg:        cfg,
		log:        log,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight runs have finished.
func (w *ProcessQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	w.log.Info("processQueueWorker: started",
		zap.Duration("poll", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Int("max_retries", w.cfg.MaxRetries),
		zap.Duration("stale_after", w.cfg.StaleAfter))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("processQueueWorker: shutting down, waiting for in-flight runs")
			w.wg.Wait()
			w.log.Info("processQueueWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			subs, err := w.subRepo.ClaimQueued(ctx, available, time.Now().Add(-w.cfg.StaleAfter))
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.Error("processQueueWorker: ClaimQueued failed", zap.Error(err))
				continue
			}

			for i := range subs {
				sub := subs[i]

				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()

					// Detached from the poll context so in-flight runs
					// complete during shutdown.
					runCtx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
					defer cancel()

					w.log.Info("processQueueWorker: dispatching",
						zap.String("submission_id", sub.ID.String()),
						zap.Int("attempt", sub.Attempts))
					w.subService.Process(runCtx, &sub, w.cfg.MaxRetries)
				}()
			}
		}
	}
}
