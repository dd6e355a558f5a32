// Package pipeline coordinates one upload job end to end: rasterize the
// source, run the escalation protocol per page, commit results.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"invoice-pipeline/internal/escalate"
	"invoice-pipeline/internal/raster"
	"invoice-pipeline/internal/repository"
)

// Processor drives the per-page protocol for an upload job. Pages are
// processed concurrently; commits to the shared invoice record are serialized
// through a per-invoice lock so a partial write can never interleave with
// another page's.
type Processor struct {
	logger     *slog.Logger
	rasterizer raster.Rasterizer
	controller *escalate.Controller
	invoices   repository.InvoiceRepository
	locks      *invoiceLocks
}

func NewProcessor(logger *slog.Logger, rasterizer raster.Rasterizer, controller *escalate.Controller, invoices repository.InvoiceRepository) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		rasterizer: rasterizer,
		controller: controller,
		invoices:   invoices,
		locks:      newInvoiceLocks(),
	}
}

// ProcessUpload runs the full pipeline for one upload. Rasterization failure
// aborts the job before any page is touched. A page that fails mid-round is
// never partially committed, but pages that already committed stay committed;
// retries re-derive everything from scratch.
func (p *Processor) ProcessUpload(ctx context.Context, invoiceID uuid.UUID, sourcePath, mimeType string) error {
	start := time.Now()
	pages, err := p.rasterizer.Rasterize(ctx, sourcePath, mimeType)
	if err != nil {
		p.logger.Error("rasterize failed", "invoice_id", invoiceID, "error", err)
		return err
	}
	p.logger.Info("processing pages", "invoice_id", invoiceID, "pages", len(pages))

	g, gctx := errgroup.WithContext(ctx)
	for i, page := range pages {
		pageIndex, pageImage := i+1, page
		g.Go(func() error {
			out, err := p.controller.Run(gctx, pageImage)
			if err != nil {
				p.logger.Error("page escalation failed",
					"invoice_id", invoiceID, "page", pageIndex, "error", err)
				return err
			}
			return p.commit(gctx, invoiceID, pageIndex, out)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Info("upload processed",
		"invoice_id", invoiceID,
		"pages", len(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// commit applies one page's winning candidate under the per-invoice lock.
// Last write wins whole; the repository write itself is a single atomic
// statement.
func (p *Processor) commit(ctx context.Context, invoiceID uuid.UUID, pageIndex int, out escalate.Outcome) error {
	unlock := p.locks.lock(invoiceID)
	defer unlock()

	if err := p.invoices.CommitExtraction(ctx, invoiceID, out.Fields); err != nil {
		p.logger.Error("commit failed",
			"invoice_id", invoiceID, "page", pageIndex, "round", out.Round, "error", err)
		return err
	}
	p.logger.Info("page committed",
		"invoice_id", invoiceID,
		"page", pageIndex,
		"round", out.Round,
		"arbitrated", out.Arbitrated,
		"review_needed", out.Fields.ReviewNeeded,
	)
	return nil
}
