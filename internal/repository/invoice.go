package repository

import (
	"context"

	"github.com/google/uuid"

	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/vision"
)

// InvoiceRepository wraps all persistence used by the API and the worker.
// CommitExtraction and ForceReview are the only writers the pipeline uses;
// both are single atomic statements so concurrent page commits to one invoice
// interleave whole, never partially.
type InvoiceRepository interface {
	// Create inserts a pending invoice before its upload job is enqueued.
	Create(ctx context.Context, inv *entity.Invoice) error

	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	List(ctx context.Context) ([]*entity.Invoice, error)
	ListByStatus(ctx context.Context, status entity.InvoiceStatus) ([]*entity.Invoice, error)

	// CommitExtraction writes a winning candidate's fields into the invoice
	// in one statement. The lifecycle transition is computed from the
	// candidate's review flag; a commit against a terminal invoice is
	// refused with ErrInvalidTransition.
	CommitExtraction(ctx context.Context, id uuid.UUID, fields vision.InvoiceFields) error

	// ForceReview pushes a pending invoice into the review-needed branch
	// with the given reason. This is the safety net for exhausted jobs.
	ForceReview(ctx context.Context, id uuid.UUID, reason string) error

	// Resolve applies a manual human decision (processed or rejected).
	Resolve(ctx context.Context, id uuid.UUID, status entity.InvoiceStatus) error
}
