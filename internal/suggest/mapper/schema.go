package mapper

// GroundedSuggestionSchema builds the JSON schema sent to the generator
// for a pack of packLen evidence items: each suggestion must reference
// an evidence_id within [0, packLen) and no additional properties are
// allowed anywhere, per spec.md §6 "Wire format".
func GroundedSuggestionSchema(packLen int) map[string]any {
	maxEvidenceID := packLen - 1
	if maxEvidenceID < 0 {
		maxEvidenceID = 0
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"suggestions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"evidence_refs": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"evidence_id": map[string]any{
										"type":    "integer",
										"minimum": 0,
										"maximum": maxEvidenceID,
									},
								},
								"required":             []any{"evidence_id"},
								"additionalProperties": false,
							},
						},
						"kind": map[string]any{
							"type": "string",
							"enum": []any{"bugfix", "improvement", "optimization", "refactoring", "security", "reliability"},
						},
						"priority":   map[string]any{"type": "string", "enum": []any{"high", "medium", "low"}},
						"confidence": map[string]any{"type": "string", "enum": []any{"high", "medium"}},
						"summary":    map[string]any{"type": "string"},
						"detail":     map[string]any{"type": "string"},
					},
					"required":             []any{"evidence_refs", "kind", "priority", "confidence", "summary", "detail"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"suggestions"},
		"additionalProperties": false,
	}
}

// ValidationSchema is the schema for a single per-suggestion validator call.
func ValidationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"validation": map[string]any{
				"type": "string",
				"enum": []any{"validated", "contradicted", "insufficient_evidence"},
			},
			"reason": map[string]any{"type": "string"},
		},
		"required":             []any{"validation", "reason"},
		"additionalProperties": false,
	}
}

// BatchValidationSchema is the schema for a batched validator call.
func BatchValidationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"validations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"local_index": map[string]any{"type": "integer"},
						"validation": map[string]any{
							"type": "string",
							"enum": []any{"validated", "contradicted", "insufficient_evidence"},
						},
						"reason": map[string]any{"type": "string"},
					},
					"required":             []any{"local_index", "validation", "reason"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"validations"},
		"additionalProperties": false,
	}
}

// RewriteSchema is the schema for overclaim-rewrite and smart-rewrite calls.
func RewriteSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"detail":  map[string]any{"type": "string"},
		},
		"required":             []any{"summary", "detail"},
		"additionalProperties": false,
	}
}
