package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/escalate"
	"invoice-pipeline/internal/pipeline"
	"invoice-pipeline/internal/queue"
	"invoice-pipeline/internal/repository"
	"invoice-pipeline/internal/vision"
)

type failingRasterizer struct{ err error }

func (f failingRasterizer) Rasterize(context.Context, string, string) ([]string, error) {
	return nil, f.err
}

type unusedExtractor struct{}

func (unusedExtractor) Extract(context.Context, string, string) (vision.InvoiceFields, error) {
	return vision.InvoiceFields{}, errors.New("not reachable")
}

type unusedVerifier struct{}

func (unusedVerifier) Verify(context.Context, string, vision.InvoiceFields) (vision.Verdict, error) {
	return vision.Verdict{}, errors.New("not reachable")
}

type unusedArbiter struct{}

func (unusedArbiter) Arbitrate(_ context.Context, _ string, a, _ vision.InvoiceFields) (vision.InvoiceFields, error) {
	return a, nil
}

func newFailingWorker(t *testing.T, repo repository.InvoiceRepository, cause error) *Processor {
	t.Helper()
	ctrl := escalate.NewController(unusedExtractor{}, unusedVerifier{}, unusedArbiter{}, nil)
	proc := pipeline.NewProcessor(nil, failingRasterizer{err: cause}, ctrl, repo)
	return NewProcessor(proc, repo, 0, nil)
}

func processTask(t *testing.T, inv *entity.Invoice) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.ProcessPayload{
		InvoiceID:  inv.ID.String(),
		SourcePath: "/tmp/" + inv.FileName,
		MimeType:   "application/pdf",
	})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeProcessInvoice, payload)
}

func TestHandleProcessRetriesBeforeExhaustion(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("invoice.pdf")
	require.NoError(t, repo.Create(context.Background(), inv))

	p := newFailingWorker(t, repo, common.ErrCapabilityUnavailable)
	p.retryInfo = func(context.Context) (int, int, bool) { return 0, queue.MaxAttempts - 1, true }

	err := p.handleProcess(context.Background(), processTask(t, inv))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCapabilityUnavailable))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.False(t, got.Review.HumanReviewNeeded, "review fallback fires only when attempts are exhausted")
}

func TestHandleProcessExhaustionForcesReview(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("invoice.pdf")
	require.NoError(t, repo.Create(context.Background(), inv))

	p := newFailingWorker(t, repo, common.ErrCapabilityUnavailable)
	p.retryInfo = func(context.Context) (int, int, bool) {
		return queue.MaxAttempts - 1, queue.MaxAttempts - 1, true
	}

	err := p.handleProcess(context.Background(), processTask(t, inv))
	require.Error(t, err, "the task still fails so the queue records the outcome")

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.True(t, got.Review.HumanReviewNeeded)
	require.NotNil(t, got.Review.ReasonForReview)
	assert.Contains(t, *got.Review.ReasonForReview, "capability unavailable")
}

func TestHandleProcessBadPayloadSkipsRetry(t *testing.T) {
	repo := repository.NewMemoryRepository()
	p := newFailingWorker(t, repo, common.ErrCapabilityUnavailable)

	err := p.handleProcess(context.Background(), asynq.NewTask(queue.TypeProcessInvoice, []byte("{not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "undecodable payloads can never succeed")

	err = p.handleProcess(context.Background(), asynq.NewTask(queue.TypeProcessInvoice, []byte(`{"invoice_id":"nope"}`)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
