// Package escalate implements the bounded extract/verify/escalate/arbitrate
// protocol that reconciles conflicting extraction attempts for one page.
package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"invoice-pipeline/internal/vision"
)

// MaxRounds bounds external-call cost: after three extractions the protocol
// always terminates with a committed candidate.
const MaxRounds = 3

// Outcome is the terminal result of one page run.
type Outcome struct {
	Fields     vision.InvoiceFields
	Round      int  // 1..MaxRounds, the round whose candidate won
	Arbitrated bool // true when round 3 decided by arbitration
}

// Controller sequences the capability clients over a single page. It holds no
// per-run state; every run is an independent re-derivation, which is what
// makes job-level retries safe without rollback.
type Controller struct {
	extractor vision.Extractor
	verifier  vision.Verifier
	arbiter   vision.Arbiter
	logger    *slog.Logger
}

func NewController(extractor vision.Extractor, verifier vision.Verifier, arbiter vision.Arbiter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{extractor: extractor, verifier: verifier, arbiter: arbiter, logger: logger}
}

// Run drives the protocol over one page image:
//
//	round 1: extract, verify; accepted -> done
//	round 2: extract with round-1 hint, verify; accepted -> done
//	round 3: extract with round-2 hint, arbitrate against the ROUND-1
//	         candidate, commit the winner unconditionally
//
// Round 3 deliberately arbitrates against the first clean-slate extraction,
// not the most recent one; the round-2 candidate is never committed once its
// verification fails. Any capability error aborts the run immediately.
func (c *Controller) Run(ctx context.Context, pageImage string) (Outcome, error) {
	page := filepath.Base(pageImage)

	candidate1, err := c.extractor.Extract(ctx, pageImage, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("round 1 extract: %w", err)
	}
	verdict1, err := c.verifier.Verify(ctx, pageImage, candidate1)
	if err != nil {
		return Outcome{}, fmt.Errorf("round 1 verify: %w", err)
	}
	if verdict1.Accepted {
		c.logger.Info("escalation settled", "page", page, "round", 1)
		return Outcome{Fields: candidate1, Round: 1}, nil
	}
	c.logger.Info("round rejected", "page", page, "round", 1, "hint", verdict1.CorrectionHint)

	candidate2, err := c.extractor.Extract(ctx, pageImage, verdict1.CorrectionHint)
	if err != nil {
		return Outcome{}, fmt.Errorf("round 2 extract: %w", err)
	}
	verdict2, err := c.verifier.Verify(ctx, pageImage, candidate2)
	if err != nil {
		return Outcome{}, fmt.Errorf("round 2 verify: %w", err)
	}
	if verdict2.Accepted {
		c.logger.Info("escalation settled", "page", page, "round", 2)
		return Outcome{Fields: candidate2, Round: 2}, nil
	}
	c.logger.Info("round rejected", "page", page, "round", 2, "hint", verdict2.CorrectionHint)

	candidate3, err := c.extractor.Extract(ctx, pageImage, verdict2.CorrectionHint)
	if err != nil {
		return Outcome{}, fmt.Errorf("round 3 extract: %w", err)
	}
	winner, err := c.arbiter.Arbitrate(ctx, pageImage, candidate3, candidate1)
	if err != nil {
		return Outcome{}, fmt.Errorf("round 3 arbitrate: %w", err)
	}
	c.logger.Info("escalation settled by arbitration", "page", page, "round", MaxRounds)
	return Outcome{Fields: winner, Round: MaxRounds, Arbitrated: true}, nil
}
