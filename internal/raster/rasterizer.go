// Package raster turns an uploaded source document into an ordered sequence
// of page images that the capability clients can consume.
package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"invoice-pipeline/internal/common"
)

// Rasterizer converts a source document into page image paths, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, sourcePath, mimeType string) ([]string, error)
}

// Config controls PDF rendering. Density and target dimensions follow the
// upstream rendering profile (150 dpi, A4 at that density).
type Config struct {
	Pdftoppm   string // binary name/path, default "pdftoppm"
	DPI        int    // default 150
	Width      int    // default 1240
	Height     int    // default 1754
	ScratchDir string // default os temp dir
}

// PageRasterizer shells out to pdftoppm for paginated documents and passes
// single images through untouched.
type PageRasterizer struct {
	cfg       Config
	runner    Runner
	logger    *slog.Logger
	preflight func(path string) (pages int, err error)
}

func NewPageRasterizer(cfg Config, logger *slog.Logger) *PageRasterizer {
	return newPageRasterizer(cfg, execRunner{}, logger)
}

func newPageRasterizer(cfg Config, runner Runner, logger *slog.Logger) *PageRasterizer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.Width <= 0 {
		cfg.Width = 1240
	}
	if cfg.Height <= 0 {
		cfg.Height = 1754
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageRasterizer{cfg: cfg, runner: runner, logger: logger, preflight: preflight}
}

// Rasterize renders a PDF into per-page PNGs under a scratch directory and
// deletes the source on success to bound storage. A single image is returned
// as a one-element sequence containing the original path, no copy. Any render
// failure aborts the whole job.
func (r *PageRasterizer) Rasterize(ctx context.Context, sourcePath, mimeType string) ([]string, error) {
	switch {
	case mimeType == "application/pdf":
		return r.renderPDF(ctx, sourcePath)
	case strings.HasPrefix(mimeType, "image/"):
		if _, err := os.Stat(sourcePath); err != nil {
			return nil, fmt.Errorf("%w: source image: %v", common.ErrRasterization, err)
		}
		return []string{sourcePath}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported mime type %q", common.ErrRasterization, mimeType)
	}
}

func (r *PageRasterizer) renderPDF(ctx context.Context, sourcePath string) ([]string, error) {
	declared, err := r.preflight(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable pdf: %v", common.ErrRasterization, err)
	}

	tmpDir, err := os.MkdirTemp(r.cfg.ScratchDir, "invoice-pages-*")
	if err != nil {
		return nil, fmt.Errorf("%w: scratch dir: %v", common.ErrRasterization, err)
	}

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 150 -scale-to-x 1240 -scale-to-y 1754 -png <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", r.cfg.DPI),
		"-scale-to-x", fmt.Sprintf("%d", r.cfg.Width),
		"-scale-to-y", fmt.Sprintf("%d", r.cfg.Height),
		"-png", sourcePath, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", common.ErrRasterization, err, truncate(string(errb), 1<<10))
	}

	// pdftoppm pads page numbers to a uniform width, so a lexical sort
	// yields page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images", common.ErrRasterization)
	}
	if declared > 0 && len(matches) < declared {
		return nil, fmt.Errorf("%w: rendered %d of %d pages", common.ErrRasterization, len(matches), declared)
	}

	if err := os.Remove(sourcePath); err != nil {
		r.logger.Warn("source cleanup failed", "path", sourcePath, "error", err)
	}
	r.logger.Info("rasterized pdf", "source", filepath.Base(sourcePath), "pages", len(matches))
	return matches, nil
}

// preflight opens the PDF before shelling out, so a corrupt upload fails fast
// with the page count it claims to have.
func preflight(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()
	return reader.NumPage(), nil
}
