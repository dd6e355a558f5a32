package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"invoice-pipeline/internal/config"
	"invoice-pipeline/internal/escalate"
	"invoice-pipeline/internal/pipeline"
	"invoice-pipeline/internal/queue"
	"invoice-pipeline/internal/raster"
	"invoice-pipeline/internal/repository"
	"invoice-pipeline/internal/vision/openai"
	"invoice-pipeline/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}
	invoices := repository.NewPostgresRepository(pool)

	// One stateless capability client serves all three roles.
	capability := openai.NewClient(openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout,
	}, logger)

	rasterizer := raster.NewPageRasterizer(raster.Config{
		Pdftoppm:   cfg.Raster.Pdftoppm,
		DPI:        cfg.Raster.DPI,
		Width:      cfg.Raster.Width,
		Height:     cfg.Raster.Height,
		ScratchDir: cfg.Raster.ScratchDir,
	}, logger)

	controller := escalate.NewController(capability, capability, capability, logger)
	proc := pipeline.NewProcessor(logger, rasterizer, controller, invoices)
	processor := worker.NewProcessor(proc, invoices, cfg.Worker.StartsPerMinute, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, asynq.Config{
		Concurrency:    cfg.Worker.Concurrency,
		RetryDelayFunc: queue.FixedRetryDelay,
		Logger:         asynqLogger{logger},
	})

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info("worker starting",
		"concurrency", cfg.Worker.Concurrency,
		"starts_per_minute", cfg.Worker.StartsPerMinute,
	)
	if err := srv.Run(processor.Handler()); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

// asynqLogger adapts slog to asynq's logging interface.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(sprint(args)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(sprint(args)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(sprint(args)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(sprint(args)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(sprint(args))
	os.Exit(1)
}

func sprint(args []interface{}) string {
	return fmt.Sprint(args...)
}
