package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/state"
	"invoice-pipeline/internal/vision"
)

// MemoryRepository is a map-backed InvoiceRepository for tests and local
// development. Writes swap whole records under one lock, matching the
// all-or-nothing commit contract of the Postgres implementation.
type MemoryRepository struct {
	mu       sync.RWMutex
	invoices map[uuid.UUID]entity.Invoice
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{invoices: make(map[uuid.UUID]entity.Invoice)}
}

func (r *MemoryRepository) Create(_ context.Context, inv *entity.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; ok {
		return fmt.Errorf("%w: duplicate invoice %s", common.ErrPersistence, inv.ID)
	}
	r.invoices[inv.ID] = clone(*inv)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*entity.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	c := clone(inv)
	return &c, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*entity.Invoice, error) {
	return r.filtered(func(entity.Invoice) bool { return true }), nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status entity.InvoiceStatus) ([]*entity.Invoice, error) {
	return r.filtered(func(inv entity.Invoice) bool { return inv.Status == status }), nil
}

func (r *MemoryRepository) filtered(keep func(entity.Invoice) bool) []*entity.Invoice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Invoice
	for _, inv := range r.invoices {
		if keep(inv) {
			c := clone(inv)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) CommitExtraction(_ context.Context, id uuid.UUID, fields vision.InvoiceFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	next, err := state.Transition(inv.Status, state.CommitEvent(fields.ReviewNeeded))
	if err != nil {
		return err
	}
	inv.Vendor = fields.Vendor
	inv.InvoiceDetails = fields.InvoiceDetails
	inv.Items = append([]entity.LineItem(nil), fields.Items...)
	inv.TotalInvoiceValue = fields.TotalInvoiceValue
	inv.TotalGSTValue = fields.TotalGSTValue
	inv.Status = next
	inv.Review = entity.Review{HumanReviewNeeded: fields.ReviewNeeded}
	if fields.ReviewNeeded && fields.ReviewReason != "" {
		reason := fields.ReviewReason
		inv.Review.ReasonForReview = &reason
	}
	inv.UpdatedAt = time.Now().UTC()
	r.invoices[id] = inv
	return nil
}

func (r *MemoryRepository) ForceReview(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	if inv.Status != entity.StatusPending {
		return fmt.Errorf("%w: force review on %s invoice %s", common.ErrInvalidTransition, inv.Status, id)
	}
	inv.Review = entity.Review{HumanReviewNeeded: true, ReasonForReview: &reason}
	inv.UpdatedAt = time.Now().UTC()
	r.invoices[id] = inv
	return nil
}

func (r *MemoryRepository) Resolve(_ context.Context, id uuid.UUID, status entity.InvoiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	ev := state.EventApprove
	if status == entity.StatusRejected {
		ev = state.EventReject
	}
	next, err := state.Transition(inv.Status, ev)
	if err != nil {
		return err
	}
	inv.Status = next
	inv.UpdatedAt = time.Now().UTC()
	r.invoices[id] = inv
	return nil
}

func clone(inv entity.Invoice) entity.Invoice {
	inv.Items = append([]entity.LineItem(nil), inv.Items...)
	if inv.Review.ReasonForReview != nil {
		reason := *inv.Review.ReasonForReview
		inv.Review.ReasonForReview = &reason
	}
	return inv
}
