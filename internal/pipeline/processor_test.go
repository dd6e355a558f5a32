package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/escalate"
	"invoice-pipeline/internal/repository"
	"invoice-pipeline/internal/vision"
)

// fakeRasterizer returns a fixed page sequence, or fails like a corrupt
// document would.
type fakeRasterizer struct {
	pages []string
	err   error
}

func (f *fakeRasterizer) Rasterize(context.Context, string, string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// pageExtractor answers deterministically per page image; safe for
// concurrent pages.
type pageExtractor struct {
	byPage map[string]vision.InvoiceFields
	err    error
}

func (p *pageExtractor) Extract(_ context.Context, page string, _ string) (vision.InvoiceFields, error) {
	if p.err != nil {
		return vision.InvoiceFields{}, p.err
	}
	return p.byPage[page], nil
}

type acceptAllVerifier struct{}

func (acceptAllVerifier) Verify(context.Context, string, vision.InvoiceFields) (vision.Verdict, error) {
	return vision.Verdict{Accepted: true}, nil
}

type firstArbiter struct{}

func (firstArbiter) Arbitrate(_ context.Context, _ string, a, _ vision.InvoiceFields) (vision.InvoiceFields, error) {
	return a, nil
}

func pageFields(vendor string, total float64) vision.InvoiceFields {
	return vision.InvoiceFields{
		Vendor:            entity.Vendor{Name: vendor, TaxNumber: "29ABCDE1234F1Z5"},
		InvoiceDetails:    entity.InvoiceDetails{Number: "INV/" + vendor, Date: "2025-10-05"},
		Items:             []entity.LineItem{{Name: vendor + " item", Qty: 1, Rate: total}},
		TotalInvoiceValue: total,
		TotalGSTValue:     total * 0.18,
	}
}

func newTestProcessor(rast *fakeRasterizer, ext vision.Extractor, repo repository.InvoiceRepository) *Processor {
	ctrl := escalate.NewController(ext, acceptAllVerifier{}, firstArbiter{}, nil)
	return NewProcessor(nil, rast, ctrl, repo)
}

func TestProcessUploadSinglePage(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("invoice.png")
	require.NoError(t, repo.Create(context.Background(), inv))

	want := pageFields("ABC Traders", 100)
	proc := newTestProcessor(
		&fakeRasterizer{pages: []string{"invoice.png"}},
		&pageExtractor{byPage: map[string]vision.InvoiceFields{"invoice.png": want}},
		repo,
	)
	require.NoError(t, proc.ProcessUpload(context.Background(), inv.ID, "invoice.png", "image/png"))

	got, err := repo.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessed, got.Status)
	assert.Equal(t, 100.0, got.TotalInvoiceValue)
	assert.Equal(t, want.Vendor, got.Vendor)
	assert.False(t, got.Review.HumanReviewNeeded)
}

func TestProcessUploadFlaggedCandidate(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("invoice.png")
	require.NoError(t, repo.Create(context.Background(), inv))

	fields := pageFields("Galaxy Computers", 21000)
	fields.ReviewNeeded = true
	fields.ReviewReason = "Invoice date missing."
	proc := newTestProcessor(
		&fakeRasterizer{pages: []string{"invoice.png"}},
		&pageExtractor{byPage: map[string]vision.InvoiceFields{"invoice.png": fields}},
		repo,
	)
	require.NoError(t, proc.ProcessUpload(context.Background(), inv.ID, "invoice.png", "image/png"))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusPending, got.Status, "flagged commit lands on the review branch")
	require.NotNil(t, got.Review.ReasonForReview)
	assert.Equal(t, "Invoice date missing.", *got.Review.ReasonForReview)
	assert.Equal(t, 21000.0, got.TotalInvoiceValue, "fields are still written")
}

func TestProcessUploadRasterizationAbortsJob(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("broken.pdf")
	require.NoError(t, repo.Create(context.Background(), inv))

	proc := newTestProcessor(
		&fakeRasterizer{err: common.ErrRasterization},
		&pageExtractor{},
		repo,
	)
	err := proc.ProcessUpload(context.Background(), inv.ID, "broken.pdf", "application/pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRasterization))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusPending, got.Status, "nothing committed")
	assert.Empty(t, got.Vendor.Name)
}

func TestProcessUploadCapabilityFailureCommitsNothing(t *testing.T) {
	repo := repository.NewMemoryRepository()
	inv := entity.NewPending("invoice.png")
	require.NoError(t, repo.Create(context.Background(), inv))

	proc := newTestProcessor(
		&fakeRasterizer{pages: []string{"invoice.png"}},
		&pageExtractor{err: common.ErrCapabilityUnavailable},
		repo,
	)
	err := proc.ProcessUpload(context.Background(), inv.ID, "invoice.png", "image/png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCapabilityUnavailable))

	got, _ := repo.GetByID(context.Background(), inv.ID)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Empty(t, got.Vendor.Name, "no partial commit for an aborted round")
}

// Two pages race to commit to the same invoice. The serialized commit
// guarantees the record reflects exactly one page's candidate, never a mix.
func TestProcessUploadConcurrentPagesStayConsistent(t *testing.T) {
	pageOne := pageFields("Page One Vendor", 100)
	pageTwo := pageFields("Page Two Vendor", 200)

	for i := 0; i < 25; i++ {
		repo := repository.NewMemoryRepository()
		inv := entity.NewPending("two-pages.pdf")
		require.NoError(t, repo.Create(context.Background(), inv))

		proc := newTestProcessor(
			&fakeRasterizer{pages: []string{"page-1.png", "page-2.png"}},
			&pageExtractor{byPage: map[string]vision.InvoiceFields{
				"page-1.png": pageOne,
				"page-2.png": pageTwo,
			}},
			repo,
		)
		require.NoError(t, proc.ProcessUpload(context.Background(), inv.ID, "two-pages.pdf", "application/pdf"))

		got, _ := repo.GetByID(context.Background(), inv.ID)
		assert.Equal(t, entity.StatusProcessed, got.Status)
		switch got.Vendor.Name {
		case pageOne.Vendor.Name:
			assert.Equal(t, pageOne.TotalInvoiceValue, got.TotalInvoiceValue)
			assert.Equal(t, pageOne.Items, got.Items)
		case pageTwo.Vendor.Name:
			assert.Equal(t, pageTwo.TotalInvoiceValue, got.TotalInvoiceValue)
			assert.Equal(t, pageTwo.Items, got.Items)
		default:
			t.Fatalf("vendor %q matches neither page", got.Vendor.Name)
		}
	}
}
