package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/entity"
)

func (s *Server) handleListInvoices(c *gin.Context) {
	invoices, err := s.invoices.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list invoices failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Error fetching invoices")
		return
	}
	respondOK(c, invoices, "Invoices fetched successfully")
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	invoice, err := s.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Invoice not found")
			return
		}
		s.logger.Error("get invoice failed", "invoice_id", id, "error", err)
		respondError(c, http.StatusInternalServerError, "Error fetching invoice")
		return
	}
	respondOK(c, invoice, "Invoice fetched successfully")
}

func (s *Server) handleListRejected(c *gin.Context) {
	invoices, err := s.invoices.ListByStatus(c.Request.Context(), entity.StatusRejected)
	if err != nil {
		s.logger.Error("list rejected failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Error fetching rejected invoices")
		return
	}
	respondOK(c, invoices, "Rejected invoices fetched successfully")
}

// handleApprove is the manual human-approval action: it treats processed as
// terminal regardless of the review sub-record's content.
func (s *Server) handleApprove(c *gin.Context) {
	s.resolve(c, entity.StatusProcessed, "Invoice approved successfully")
}

func (s *Server) handleReject(c *gin.Context) {
	s.resolve(c, entity.StatusRejected, "Invoice rejected successfully")
}

func (s *Server) resolve(c *gin.Context, status entity.InvoiceStatus, message string) {
	id, ok := parseInvoiceID(c)
	if !ok {
		return
	}
	if err := s.invoices.Resolve(c.Request.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			respondError(c, http.StatusNotFound, "Invoice not found")
		case errors.Is(err, common.ErrInvalidTransition):
			respondError(c, http.StatusConflict, "Invoice is not pending")
		default:
			s.logger.Error("resolve invoice failed", "invoice_id", id, "error", err)
			respondError(c, http.StatusInternalServerError, "Server error")
		}
		return
	}
	invoice, err := s.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		respondOK(c, nil, message)
		return
	}
	respondOK(c, invoice, message)
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv":
		data, err := s.exporter.ExportCSV(c.Request.Context())
		if err != nil {
			s.logger.Error("export failed", "format", format, "error", err)
			respondError(c, http.StatusInternalServerError, "Error exporting invoices")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="invoices.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
	case "xlsx":
		data, err := s.exporter.ExportXLSX(c.Request.Context())
		if err != nil {
			s.logger.Error("export failed", "format", format, "error", err)
			respondError(c, http.StatusInternalServerError, "Error exporting invoices")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="invoices.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		respondError(c, http.StatusBadRequest, "format must be csv or xlsx")
	}
}
