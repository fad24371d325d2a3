package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"forge/internal/models"
	"forge/internal/render"
)

// BatchParams is the batch request shape stored in batches.params_json:
// which templates to use, the row data, the field mapping, and the
// distribution and output settings.
type BatchParams struct {
	TemplateIDs        []string            `json:"template_ids"`
	Rows               []models.Row        `json:"rows"`
	FieldMapping       models.FieldMapping `json:"field_mapping,omitempty"`
	DistributionMode   string              `json:"distribution_mode,omitempty"`
	DistributionColumn string              `json:"distribution_column,omitempty"`
	Seed               *int64              `json:"seed,omitempty"`
	ConcurrencyLimit   int                 `json:"concurrency_limit,omitempty"`
	Output             render.Config       `json:"output,omitempty"`
}

// ParsedBatch is a validated batch definition ready for template loading.
type ParsedBatch struct {
	Params BatchParams
	Mode   render.Mode
}

// ParseBatchParams decodes and validates a stored batch definition.
// Violations here are setup errors: the batch fails before any row is
// attempted.
func ParseBatchParams(paramsJSON string) (*ParsedBatch, error) {
	var p BatchParams
	if err := json.Unmarshal([]byte(paramsJSON), &p); err != nil {
		return nil, fmt.Errorf("invalid params_json: %w", err)
	}

	if len(p.TemplateIDs) == 0 {
		return nil, fmt.Errorf("template_ids is required")
	}
	for i, id := range p.TemplateIDs {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("template_ids[%d] is empty", i)
		}
	}
	if len(p.Rows) == 0 {
		return nil, fmt.Errorf("rows is required")
	}

	mode, err := render.ParseMode(p.DistributionMode)
	if err != nil {
		return nil, err
	}
	if mode == render.ModeCSVColumn && strings.TrimSpace(p.DistributionColumn) == "" {
		return nil, fmt.Errorf("distribution_column is required for csv_column mode")
	}

	return &ParsedBatch{Params: p, Mode: mode}, nil
}
