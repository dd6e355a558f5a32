package entity

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the persisted lifecycle state of an invoice.
type InvoiceStatus string

// Stable values (stored as-is in the database).
const (
	StatusPending   InvoiceStatus = "pending"   // awaiting processing, or awaiting human review
	StatusProcessed InvoiceStatus = "processed" // terminal success
	StatusRejected  InvoiceStatus = "rejected"  // terminal, explicit rejection
)

// Vendor identifies the invoice issuer.
type Vendor struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	TaxNumber string `json:"taxNumber"`
	Phone     string `json:"phone"`
}

// InvoiceDetails carries the invoice header fields.
type InvoiceDetails struct {
	Number string `json:"number"`
	Date   string `json:"date"` // as printed; extraction normalizes to YYYY-MM-DD
	Type   string `json:"type,omitempty"`
}

// LineItem is one billed row of the invoice.
type LineItem struct {
	Name   string  `json:"name"`
	Qty    float64 `json:"qty"`
	HSNSAC string  `json:"hsn_sac,omitempty"`
	Rate   float64 `json:"rate"`
}

// Review is the human-review sub-record. ReasonForReview is set only when
// HumanReviewNeeded is true.
type Review struct {
	HumanReviewNeeded bool    `json:"humanReviewNeeded"`
	ReasonForReview   *string `json:"reasonForReview"`
}

// Invoice is the durable business record. Exactly one invoice exists per
// upload job; it is created empty in status pending before the job is
// enqueued, and mutated only by extraction commits and manual review actions.
type Invoice struct {
	ID                uuid.UUID      `json:"id"`
	FileName          string         `json:"fileName"`
	Vendor            Vendor         `json:"vendor"`
	InvoiceDetails    InvoiceDetails `json:"invoiceDetails"`
	Items             []LineItem     `json:"items"`
	TotalInvoiceValue float64        `json:"totalInvoiceValue"`
	TotalGSTValue     float64        `json:"totalGSTValue"`
	Status            InvoiceStatus  `json:"status"`
	Review            Review         `json:"review"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// NewPending returns an empty invoice in the initial state, ready to be
// persisted before its upload job is enqueued.
func NewPending(fileName string) *Invoice {
	now := time.Now().UTC()
	return &Invoice{
		ID:        uuid.New(),
		FileName:  fileName,
		Status:    StatusPending,
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
