package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"energodoc/internal/domain"
	"energodoc/internal/service"
	"energodoc/mocks"
)

func runWorker(t *testing.T, w *service.ProcessQueueWorker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(d)
	cancel()
	<-done
}

func TestProcessQueueWorker_PollsAndDispatches(t *testing.T) {
	subRepo := new(mocks.MockSubmissionRepo)
	subSvc := new(mocks.MockSubmissionService)

	sub := domain.RawSubmission{
		ID:       uuid.New(),
		FileName: "report.xlsx",
		FileType: domain.FileTypeXLSX,
		Status:   domain.SubmissionStatusProcessing,
		Attempts: 1,
	}

	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Return([]domain.RawSubmission{sub}, nil).Once()
	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Return([]domain.RawSubmission{}, nil).Maybe()
	subSvc.On("Process", mock.Anything, mock.MatchedBy(func(s *domain.RawSubmission) bool {
		return s.ID == sub.ID
	}), 3).Return().Once()

	w := service.NewProcessQueueWorker(subRepo, subSvc, service.ProcessQueueConfig{
		PollInterval: 20 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  2,
		Timeout:      time.Second,
	}, zap.NewNop())
	runWorker(t, w, 150*time.Millisecond)

	subSvc.AssertExpectations(t)
}

func TestProcessQueueWorker_RespectsConcurrencyCap(t *testing.T) {
	subRepo := new(mocks.MockSubmissionRepo)
	subSvc := new(mocks.MockSubmissionService)
	cfg := service.ProcessQueueConfig{PollInterval: 20 * time.Millisecond, MaxRetries: 3, Concurrency: 2}

	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Return([]domain.RawSubmission{}, nil).Maybe()

	runWorker(t, service.NewProcessQueueWorker(subRepo, subSvc, cfg, zap.NewNop()), 100*time.Millisecond)

	for _, call := range subRepo.Calls {
		if call.Method == "ClaimQueued" {
			assert.LessOrEqual(t, call.Arguments.Get(1).(int), cfg.Concurrency)
		}
	}
	subSvc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessQueueWorker_WaitsForInFlightRuns(t *testing.T) {
	subRepo := new(mocks.MockSubmissionRepo)
	subSvc := new(mocks.MockSubmissionService)

	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Return([]domain.RawSubmission{{ID: uuid.New()}}, nil).Once()
	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Return([]domain.RawSubmission{}, nil).Maybe()

	var finished bool
	var runCtxErr error
	subSvc.On("Process", mock.Anything, mock.Anything, 3).Run(func(args mock.Arguments) {
		time.Sleep(100 * time.Millisecond)
		runCtxErr = args.Get(0).(context.Context).Err()
		finished = true
	}).Return()

	w := service.NewProcessQueueWorker(subRepo, subSvc, service.ProcessQueueConfig{
		PollInterval: 10 * time.Millisecond,
		MaxRetries:   3,
		Concurrency:  1,
		Timeout:      time.Second,
	}, zap.NewNop())
	runWorker(t, w, 30*time.Millisecond)

	assert.True(t, finished)
	assert.NoError(t, runCtxErr, "shutdown must not cancel in-flight runs")
}

func TestProcessQueueWorker_ReclaimsStaleProcessing(t *testing.T) {
	subRepo := new(mocks.MockSubmissionRepo)
	subSvc := new(mocks.MockSubmissionService)

	var staleBefore []time.Time
	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			staleBefore = append(staleBefore, args.Get(2).(time.Time))
		}).
		Return([]domain.RawSubmission{}, nil)

	start := time.Now()
	w := service.NewProcessQueueWorker(subRepo, subSvc, service.ProcessQueueConfig{
		PollInterval: 10 * time.Millisecond,
		Concurrency:  1,
		Timeout:      time.Minute,
		StaleAfter:   time.Hour,
	}, zap.NewNop())
	runWorker(t, w, 50*time.Millisecond)

	require.NotEmpty(t, staleBefore)
	assert.WithinDuration(t, start.Add(-time.Hour), staleBefore[0], time.Second)
}

func TestProcessQueueWorker_StaleAfterOutlastsTimeout(t *testing.T) {
	subRepo := new(mocks.MockSubmissionRepo)
	subSvc := new(mocks.MockSubmissionService)

	var staleBefore time.Time
	subRepo.On("ClaimQueued", mock.Anything, mock.AnythingOfType("int"), mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { staleBefore = args.Get(2).(time.Time) }).
		Return([]domain.RawSubmission{}, nil)

	start := time.Now()
	w := service.NewProcessQueueWorker(subRepo, subSvc, service.ProcessQueueConfig{
		PollInterval: 10 * time.Millisecond,
		Concurrency:  1,
		Timeout:      time.Minute,
		StaleAfter:   time.Second,
	}, zap.NewNop())
	runWorker(t, w, 50*time.Millisecond)

	assert.WithinDuration(t, start.Add(-2*time.Minute), staleBefore, time.Second)
}
