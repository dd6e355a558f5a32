package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"invoice-pipeline/internal/common"
	"invoice-pipeline/internal/vision"
)

// Extract implements vision.Extractor. The page image and the invoice schema
// go out in one chat/completions call; the reply is validated against the
// schema before it is unmarshalled, so a malformed response never reaches the
// caller as a candidate.
func (c *Client) Extract(ctx context.Context, pageImage string, correctionHint string) (vision.InvoiceFields, error) {
	rid := uuid.New().String()
	start := time.Now()
	schema := vision.BuildInvoiceJSONSchema()

	c.logger.Info("extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"page", filepath.Base(pageImage),
		"has_hint", correctionHint != "",
	)

	content, err := c.complete(ctx, pageImage, buildExtractSystemPrompt(), buildExtractUserPrompt(correctionHint), schema)
	if err != nil {
		c.logger.Error("extract.call_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.InvoiceFields{}, err
	}

	if err := vision.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.logger.Error("extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.InvoiceFields{}, err
	}

	var out vision.InvoiceFields
	if err := json.Unmarshal(content, &out); err != nil {
		return vision.InvoiceFields{}, fmt.Errorf("%w: unmarshal fields: %v", common.ErrSchemaValidation, err)
	}

	c.logger.Info("extract.ok",
		"req_id", rid,
		"vendor", out.Vendor.Name,
		"number", out.InvoiceDetails.Number,
		"total", out.TotalInvoiceValue,
		"review_needed", out.ReviewNeeded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Verify implements vision.Verifier.
func (c *Client) Verify(ctx context.Context, pageImage string, candidate vision.InvoiceFields) (vision.Verdict, error) {
	rid := uuid.New().String()
	start := time.Now()
	schema := vision.BuildVerdictJSONSchema()

	content, err := c.complete(ctx, pageImage, buildVerifySystemPrompt(), buildVerifyUserPrompt(candidate), schema)
	if err != nil {
		c.logger.Error("verify.call_failed", "req_id", rid, "error", err)
		return vision.Verdict{}, err
	}
	if err := vision.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.logger.Error("verify.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content))
		return vision.Verdict{}, err
	}

	var v vision.Verdict
	if err := json.Unmarshal(content, &v); err != nil {
		return vision.Verdict{}, fmt.Errorf("%w: unmarshal verdict: %v", common.ErrSchemaValidation, err)
	}
	if v.Accepted {
		// Hint is a placeholder on acceptance; never let it leak downstream.
		v.CorrectionHint = ""
	}

	c.logger.Info("verify.ok",
		"req_id", rid,
		"accepted", v.Accepted,
		"hint_len", len(v.CorrectionHint),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return v, nil
}

// Arbitrate implements vision.Arbiter. The model only names a winner, so the
// returned candidate is always one of the inputs, byte for byte.
func (c *Client) Arbitrate(ctx context.Context, pageImage string, a, b vision.InvoiceFields) (vision.InvoiceFields, error) {
	rid := uuid.New().String()
	start := time.Now()
	schema := vision.BuildArbitrationJSONSchema()

	content, err := c.complete(ctx, pageImage, buildArbitrateSystemPrompt(), buildArbitrateUserPrompt(a, b), schema)
	if err != nil {
		c.logger.Error("arbitrate.call_failed", "req_id", rid, "error", err)
		return vision.InvoiceFields{}, err
	}
	if err := vision.ValidateJSONAgainstSchema(schema, content); err != nil {
		c.logger.Error("arbitrate.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content))
		return vision.InvoiceFields{}, err
	}

	var choice struct {
		Winner string `json:"winner"`
	}
	if err := json.Unmarshal(content, &choice); err != nil {
		return vision.InvoiceFields{}, fmt.Errorf("%w: unmarshal choice: %v", common.ErrSchemaValidation, err)
	}

	c.logger.Info("arbitrate.ok",
		"req_id", rid,
		"winner", choice.Winner,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if choice.Winner == "B" {
		return b, nil
	}
	return a, nil
}

// complete sends one page image plus prompts and the target schema, and
// returns the raw message content.
func (c *Client) complete(ctx context.Context, pageImage, sysPrompt, userPrompt string, schema map[string]any) ([]byte, error) {
	dataURL, err := encodeImage(pageImage)
	if err != nil {
		return nil, fmt.Errorf("read page image: %w", err)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sysPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": userPrompt},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode completion: %v", common.ErrSchemaValidation, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", common.ErrSchemaValidation)
	}
	return []byte(strings.TrimSpace(cc.Choices[0].Message.Content)), nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCapabilityUnavailable, err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("response body close error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%w: read response: %v", common.ErrCapabilityUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", common.ErrCapabilityUnavailable, resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".webp":
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
