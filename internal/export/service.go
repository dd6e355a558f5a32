// Package export flattens invoices into spreadsheet form for download.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/repository"
)

var headers = []string{
	"File Name",
	"Status",
	"Vendor",
	"Tax Number",
	"Invoice Number",
	"Invoice Date",
	"Invoice Type",
	"Line Items",
	"Total Invoice Value",
	"Total GST Value",
	"Review Needed",
	"Review Reason",
	"Created At",
}

// Service produces CSV/XLSX bytes for the invoice list.
type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportCSV returns all invoices as a CSV sheet, one row per invoice.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	recs, err := s.invoices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	for _, inv := range recs {
		if err := w.Write(row(inv)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	s.logger.Info("exported invoices", "format", "csv", "count", len(recs))
	return buf.Bytes(), nil
}

// ExportXLSX returns all invoices as an XLSX workbook.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	recs, err := s.invoices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, inv := range recs {
		for c, v := range row(inv) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("exported invoices", "format", "xlsx", "count", len(recs))
	return buf.Bytes(), nil
}

func row(inv *entity.Invoice) []string {
	reason := ""
	if inv.Review.ReasonForReview != nil {
		reason = *inv.Review.ReasonForReview
	}
	return []string{
		inv.FileName,
		string(inv.Status),
		inv.Vendor.Name,
		inv.Vendor.TaxNumber,
		inv.InvoiceDetails.Number,
		inv.InvoiceDetails.Date,
		inv.InvoiceDetails.Type,
		strconv.Itoa(len(inv.Items)),
		formatAmount(inv.TotalInvoiceValue),
		formatAmount(inv.TotalGSTValue),
		strconv.FormatBool(inv.Review.HumanReviewNeeded),
		reason,
		inv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
