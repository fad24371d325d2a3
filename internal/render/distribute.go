package render

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"forge/internal/models"
)

// Mode is the policy for assigning a template to each row when multiple
// templates are in play.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeRandom     Mode = "random"
	ModeEqual      Mode = "equal"
	ModeCSVColumn  Mode = "csv_column"
)

// ParseMode validates a distribution mode string. Empty defaults to
// sequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case "":
		return ModeSequential, nil
	case ModeSequential, ModeRandom, ModeEqual, ModeCSVColumn:
		return Mode(strings.TrimSpace(s)), nil
	default:
		return "", fmt.Errorf("unknown distribution mode %q", s)
	}
}

// SelectorOptions tunes template assignment.
type SelectorOptions struct {
	// Column names the row column consulted by csv_column mode.
	Column string
	// Seed, when non-nil, makes random mode reproducible. Nil keeps true
	// per-run randomness.
	Seed *int64
}

// Assignment resolves one row index to a template, with an optional warning
// attached (csv_column fallback).
type Assignment struct {
	Template *models.Template
	Warning  string
}

// AssignTemplates resolves a template for every row. Single-template batches
// bypass selection entirely and never warn.
func AssignTemplates(templates []*models.Template, mode Mode, rows []models.Row, opts SelectorOptions) ([]Assignment, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("at least one template is required")
	}

	out := make([]Assignment, len(rows))

	if len(templates) == 1 {
		for i := range out {
			out[i] = Assignment{Template: templates[0]}
		}
		return out, nil
	}

	switch mode {
	case ModeSequential, "":
		for i := range out {
			out[i] = Assignment{Template: templates[i%len(templates)]}
		}

	case ModeRandom:
		var rng *rand.Rand
		if opts.Seed != nil {
			rng = rand.New(rand.NewSource(*opts.Seed))
		} else {
			rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		for i := range out {
			out[i] = Assignment{Template: templates[rng.Intn(len(templates))]}
		}

	case ModeEqual:
		// N contiguous blocks, as even as possible: the first rows%N blocks
		// get one extra row. Block order follows template order.
		n := len(templates)
		base := len(rows) / n
		extra := len(rows) % n
		idx := 0
		for b := 0; b < n; b++ {
			size := base
			if b < extra {
				size++
			}
			for j := 0; j < size; j++ {
				out[idx] = Assignment{Template: templates[b]}
				idx++
			}
		}

	case ModeCSVColumn:
		if strings.TrimSpace(opts.Column) == "" {
			return nil, fmt.Errorf("csv_column mode requires a distribution column")
		}
		for i, row := range rows {
			out[i] = matchByColumn(templates, row, opts.Column)
		}

	default:
		return nil, fmt.Errorf("unknown distribution mode %q", mode)
	}

	return out, nil
}

// matchByColumn matches a row column value against template id, short id or
// name. No match falls back to the first template with a warning.
func matchByColumn(templates []*models.Template, row models.Row, column string) Assignment {
	value := strings.TrimSpace(row[column])
	if value != "" {
		for _, t := range templates {
			if value == t.ID || value == t.ShortID() || strings.EqualFold(value, t.Name) {
				return Assignment{Template: t}
			}
		}
	}
	return Assignment{
		Template: templates[0],
		Warning:  fmt.Sprintf("no template matches %q in column %q, using %q", value, column, templates[0].Name),
	}
}
