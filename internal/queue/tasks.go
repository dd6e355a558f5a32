// Package queue defines the upload task and how it is enqueued. One task is
// scheduled per uploaded file, 1:1 with a pre-created pending invoice.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeProcessInvoice is scheduled each time an invoice file is uploaded.
	TypeProcessInvoice = "invoice:process"

	// MaxAttempts is the total number of tries a job gets, including the
	// first run.
	MaxAttempts = 3

	// RetryDelay is the fixed backoff between attempts.
	RetryDelay = 1 * time.Second
)

// ProcessPayload is serialized into the task so the worker knows which source
// file to process and which invoice record owns the result.
type ProcessPayload struct {
	InvoiceID  string `json:"invoice_id"`
	SourcePath string `json:"source_path"`
	MimeType   string `json:"mime_type"`
}

// EnqueueProcess schedules an invoice processing job and returns its id.
// Extra options (per-job deadline, queue selection) ride along with the
// retry policy.
func EnqueueProcess(ctx context.Context, client *asynq.Client, payload ProcessPayload, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeProcessInvoice, data)
	opts = append([]asynq.Option{asynq.MaxRetry(MaxAttempts - 1)}, opts...)
	info, err := client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue process task: %w", err)
	}
	return info.ID, nil
}

// FixedRetryDelay is plugged into the asynq server so every retry waits the
// same interval regardless of attempt number.
func FixedRetryDelay(int, error, *asynq.Task) time.Duration {
	return RetryDelay
}
