package vision

import (
	"context"

	"invoice-pipeline/internal/entity"
)

// InvoiceFields is the normalized shape we want from the model for one page.
// It mirrors the persisted invoice content plus the model's own review flag.
type InvoiceFields struct {
	Vendor            entity.Vendor         `json:"vendor"`
	InvoiceDetails    entity.InvoiceDetails `json:"invoiceDetails"`
	Items             []entity.LineItem     `json:"items"`
	TotalInvoiceValue float64               `json:"totalInvoiceValue"`
	TotalGSTValue     float64               `json:"totalGSTValue"`
	ReviewNeeded      bool                  `json:"reviewNeeded"`
	ReviewReason      string                `json:"reviewReason,omitempty"`
}

// Verdict is the verifier's judgment of a candidate. CorrectionHint is
// meaningful only when Accepted is false; otherwise it is a placeholder and
// callers ignore it.
type Verdict struct {
	Accepted       bool   `json:"accepted"`
	CorrectionHint string `json:"correctionHint"`
}

// Extractor reads structured invoice fields off a page image. A non-empty
// correctionHint steers a re-extraction after a rejected verification.
type Extractor interface {
	Extract(ctx context.Context, pageImage string, correctionHint string) (InvoiceFields, error)
}

// Verifier judges whether a candidate is a materially correct reading of the
// page. Semantic equivalence, not formatting equivalence: "12.00" and "12"
// are the same value. Ties resolve to accepted.
type Verifier interface {
	Verify(ctx context.Context, pageImage string, candidate InvoiceFields) (Verdict, error)
}

// Arbiter picks the more accurate of two candidates. The winner is returned
// unmodified; arbitration never merges or synthesizes a record.
type Arbiter interface {
	Arbitrate(ctx context.Context, pageImage string, a, b InvoiceFields) (InvoiceFields, error)
}
