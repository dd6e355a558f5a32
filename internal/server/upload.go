package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"invoice-pipeline/internal/entity"
	"invoice-pipeline/internal/queue"
)

var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
}

// handleUpload accepts one or more invoice files, creates a pending invoice
// per file and enqueues one processing job per file. The invoice row exists
// before the job does, so the 1:1 correspondence holds even if the enqueue
// fails and the client retries.
func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "multipart form required")
		return
	}
	files := form.File["invoices"]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "no files in 'invoices' field")
		return
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0o755); err != nil {
		respondError(c, http.StatusInternalServerError, "upload dir unavailable")
		return
	}

	var (
		jobs     []string
		invoices []*entity.Invoice
	)
	for _, file := range files {
		mimeType := detectMimeType(file)
		if !allowedMimeTypes[mimeType] {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q for %s", mimeType, file.Filename))
			return
		}

		inv := entity.NewPending(filepath.Base(file.Filename))
		dest := filepath.Join(s.cfg.Server.UploadDir, inv.ID.String()+strings.ToLower(filepath.Ext(file.Filename)))
		if err := c.SaveUploadedFile(file, dest); err != nil {
			s.logger.Error("save upload failed", "file", file.Filename, "error", err)
			respondError(c, http.StatusInternalServerError, "failed to store upload")
			return
		}

		if err := s.invoices.Create(c.Request.Context(), inv); err != nil {
			s.logger.Error("create invoice failed", "file", file.Filename, "error", err)
			respondError(c, http.StatusInternalServerError, "failed to create invoice")
			return
		}

		jobID, err := queue.EnqueueProcess(c.Request.Context(), s.queue, queue.ProcessPayload{
			InvoiceID:  inv.ID.String(),
			SourcePath: dest,
			MimeType:   mimeType,
		}, asynq.Timeout(s.cfg.Worker.ProcessTimeout))
		if err != nil {
			s.logger.Error("enqueue failed", "invoice_id", inv.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "failed to enqueue processing job")
			return
		}

		s.logger.Info("invoice uploaded",
			"invoice_id", inv.ID, "job_id", jobID, "file", file.Filename, "mime", mimeType)
		jobs = append(jobs, jobID)
		invoices = append(invoices, inv)
	}

	respondOK(c, gin.H{"jobs": jobs, "invoices": invoices}, "Invoice uploaded successfully")
}

func detectMimeType(file *multipart.FileHeader) string {
	if ct := file.Header.Get("Content-Type"); ct != "" {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	switch strings.ToLower(filepath.Ext(file.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func parseInvoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid invoice id")
		return uuid.Nil, false
	}
	return id, true
}
