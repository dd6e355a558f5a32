package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"invoice-pipeline/internal/vision"
)

func buildExtractSystemPrompt() string {
	parts := []string{
		"You are an invoice parser. You are given one page of a scanned invoice.",
		"Return ONLY JSON that matches the JSON Schema provided. No markdown fences, no commentary.",
		"Extract vendor details (name, address, tax number, phone), invoice details (number, date, type), the line items (name, qty, hsn_sac, rate), the total invoice value and the total GST value.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Set reviewNeeded=true and explain in reviewReason when the invoice itself is suspect:",
		"a GST/tax calculation that does not add up, a tax number not in the expected format, or critical information missing (invoice number, invoice date, invoice value, GST value).",
		"Do NOT flag common omissions like a missing hsn_sac or phone number.",
		"reviewReason must be given only when reviewNeeded is true.",
	}
	return strings.Join(parts, " ")
}

func buildExtractUserPrompt(correctionHint string) string {
	var b strings.Builder
	b.WriteString("Extract the invoice fields from this page image and return JSON matching the schema.")
	if correctionHint != "" {
		b.WriteString("\n\nA previous reading of this page was rejected with this feedback; correct it:\n")
		b.WriteString(correctionHint)
	}
	return b.String()
}

func buildVerifySystemPrompt() string {
	parts := []string{
		"You are a strict but fair judge of invoice extraction.",
		"You are given one page of a scanned invoice and a candidate JSON reading of it.",
		"Decide whether the candidate is a materially correct reading of the page.",
		"Judge semantic equivalence, not formatting: \"12.00\" and \"12\" are the same value, and harmless date or whitespace formatting differences are not errors.",
		"If the reading is acceptable or you are unsure, accept it.",
		"Only reject when a field is clearly wrong or clearly missing, and then give one short correctionHint describing what to fix.",
		"Return ONLY JSON matching the schema: {\"accepted\": bool, \"correctionHint\": string}.",
		"correctionHint is required only when accepted is false.",
	}
	return strings.Join(parts, " ")
}

func buildVerifyUserPrompt(candidate vision.InvoiceFields) string {
	return "Candidate reading:\n" + mustJSON(candidate)
}

func buildArbitrateSystemPrompt() string {
	parts := []string{
		"You are given one page of a scanned invoice and two candidate JSON readings of it, labelled A and B.",
		"Pick the candidate that reads the page more accurately.",
		"Return ONLY JSON matching the schema: {\"winner\": \"A\"} or {\"winner\": \"B\"}.",
		"Never edit, merge or rewrite the candidates.",
	}
	return strings.Join(parts, " ")
}

func buildArbitrateUserPrompt(a, b vision.InvoiceFields) string {
	return fmt.Sprintf("Candidate A:\n%s\n\nCandidate B:\n%s", mustJSON(a), mustJSON(b))
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
