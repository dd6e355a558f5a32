// Package worker plugs the pipeline into the asynq worker loop and owns the
// job-level retry semantics.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"invoice-pipeline/internal/pipeline"
	"invoice-pipeline/internal/queue"
	"invoice-pipeline/internal/repository"
)

// retryInfo reports the current attempt's retry position; split out so tests
// can simulate the final attempt without an asynq server.
type retryInfo func(ctx context.Context) (retried, maxRetry int, ok bool)

func asynqRetryInfo(ctx context.Context) (int, int, bool) {
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return retried, maxRetry, ok1 && ok2
}

// Processor handles dequeued upload jobs. A limiter caps the job-start rate
// so the external capabilities are not hammered past their throughput limits;
// jobs beyond the limit wait rather than fail.
type Processor struct {
	pipeline  *pipeline.Processor
	invoices  repository.InvoiceRepository
	limiter   *rate.Limiter
	logger    *slog.Logger
	retryInfo retryInfo
}

// NewProcessor constructs a worker processor. startsPerMinute bounds how many
// jobs may begin per minute (0 disables the limit).
func NewProcessor(p *pipeline.Processor, invoices repository.InvoiceRepository, startsPerMinute int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if startsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(startsPerMinute)/60.0), startsPerMinute)
	}
	return &Processor{
		pipeline:  p,
		invoices:  invoices,
		limiter:   limiter,
		logger:    logger,
		retryInfo: asynqRetryInfo,
	}
}

// Handler registers the invoice processing handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessInvoice, p.handleProcess)
	return mux
}

func (p *Processor) handleProcess(ctx context.Context, task *asynq.Task) error {
	var payload queue.ProcessPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A payload we cannot decode will never succeed; don't retry it.
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	invoiceID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		return fmt.Errorf("parse invoice id: %v: %w", err, asynq.SkipRetry)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err = p.pipeline.ProcessUpload(ctx, invoiceID, payload.SourcePath, payload.MimeType)
	if err == nil {
		p.logger.Info("job complete",
			"invoice_id", invoiceID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	p.logger.Error("job failed", "invoice_id", invoiceID, "error", err)
	if retried, maxRetry, ok := p.retryInfo(ctx); ok && retried >= maxRetry {
		// Attempts exhausted: no document is silently lost. The invoice is
		// parked in the review-needed branch with the last error as the
		// reason, and the failure stays visible to a human.
		if ferr := p.invoices.ForceReview(ctx, invoiceID, err.Error()); ferr != nil {
			p.logger.Warn("review fallback not applied", "invoice_id", invoiceID, "error", ferr)
		} else {
			p.logger.Info("invoice flagged for review after exhausted retries", "invoice_id", invoiceID)
		}
	}
	return err
}
