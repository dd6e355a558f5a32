// Package server exposes the upload and invoice CRUD surface over HTTP. The
// pipeline itself never depends on this package; the API only creates pending
// invoices, enqueues jobs and reads results.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"invoice-pipeline/internal/config"
	"invoice-pipeline/internal/export"
	"invoice-pipeline/internal/repository"
)

type Server struct {
	cfg      *config.Config
	invoices repository.InvoiceRepository
	queue    *asynq.Client
	exporter *export.Service
	logger   *slog.Logger
}

func New(cfg *config.Config, invoices repository.InvoiceRepository, queueClient *asynq.Client, exporter *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		invoices: invoices,
		queue:    queueClient,
		exporter: exporter,
		logger:   logger,
	}
}

// Router wires all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/invoices/upload", s.handleUpload)
		api.GET("/invoices", s.handleListInvoices)
		api.GET("/invoices/export", s.handleExport)
		api.GET("/invoices/rejected", s.handleListRejected)
		api.GET("/invoices/:id", s.handleGetInvoice)
		api.POST("/invoices/:id/approve", s.handleApprove)
		api.POST("/invoices/:id/reject", s.handleReject)
	}
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "addr", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func respondOK(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "message": message})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
