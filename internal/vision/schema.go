package vision

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as a structured output constraint and
// used locally to validate what comes back.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"qty":     map[string]any{"type": "number"},
			"hsn_sac": map[string]any{"type": "string"},
			"rate":    map[string]any{"type": "number"},
		},
		"required": []string{"name", "qty", "rate"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"address":   map[string]any{"type": "string"},
					"taxNumber": map[string]any{"type": "string"},
					"phone":     map[string]any{"type": "string"},
				},
				"required": []string{"name", "address", "taxNumber", "phone"},
			},
			"invoiceDetails": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"number": map[string]any{"type": "string"},
					"date":   map[string]any{"type": "string"},
					"type":   map[string]any{"type": "string"},
				},
				"required": []string{"number", "date"},
			},
			"items": map[string]any{
				"type":  "array",
				"items": item,
			},
			"totalInvoiceValue": map[string]any{"type": "number"},
			"totalGSTValue":     map[string]any{"type": "number"},
			"reviewNeeded":      map[string]any{"type": "boolean"},
			"reviewReason":      map[string]any{"type": "string"},
		},
		"required": []string{
			"vendor", "invoiceDetails", "items",
			"totalInvoiceValue", "totalGSTValue", "reviewNeeded",
		},
	}
}

// BuildVerdictJSONSchema constrains the verifier's reply.
func BuildVerdictJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"accepted":       map[string]any{"type": "boolean"},
			"correctionHint": map[string]any{"type": "string"},
		},
		"required": []string{"accepted"},
	}
}

// BuildArbitrationJSONSchema constrains the arbiter's reply to a bare choice,
// which guarantees the winning candidate is returned unmodified.
func BuildArbitrationJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"winner": map[string]any{"type": "string", "enum": []string{"A", "B"}},
		},
		"required": []string{"winner"},
	}
}
