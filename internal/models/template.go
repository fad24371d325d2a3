package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ElementType discriminates the element union.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementImage ElementType = "image"
	ElementShape ElementType = "shape"
)

// CharStyle overrides text styling for the rune range [Start, End).
// Zero-valued fields keep the element-level default.
type CharStyle struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Color    string  `json:"color,omitempty"`
	FontSize float64 `json:"font_size,omitempty"`
}

type TextProps struct {
	Content    string      `json:"content"`
	FontFamily string      `json:"font_family,omitempty"`
	FontSize   float64     `json:"font_size"`
	Color      string      `json:"color,omitempty"`
	Align      string      `json:"align,omitempty"` // left | center | right
	LineHeight float64     `json:"line_height,omitempty"`
	CharStyles []CharStyle `json:"char_styles,omitempty"`
}

type ImageProps struct {
	URL string `json:"url"`
	Fit string `json:"fit,omitempty"` // stretch | cover
}

type ShapeProps struct {
	Kind        string  `json:"kind"` // rectangle | ellipse
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// Element is one visual item in a template. Exactly one of Text, Image or
// Shape is set, matching Type. DynamicField, when non-empty, names the
// template field whose value is taken from row data through the field
// mapping at render time; the static value is the fallback.
type Element struct {
	ID           string      `json:"id,omitempty"`
	Type         ElementType `json:"type"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Width        float64     `json:"width"`
	Height       float64     `json:"height"`
	Rotation     float64     `json:"rotation,omitempty"` // degrees, clockwise
	ZIndex       int         `json:"z_index,omitempty"`
	Hidden       bool        `json:"hidden,omitempty"`
	Opacity      float64     `json:"opacity,omitempty"` // 0 means unset (opaque)
	DynamicField string      `json:"dynamic_field,omitempty"`

	Text  *TextProps  `json:"text,omitempty"`
	Image *ImageProps `json:"image,omitempty"`
	Shape *ShapeProps `json:"shape,omitempty"`
}

// EffectiveOpacity normalizes the stored opacity to the (0, 1] range.
func (e *Element) EffectiveOpacity() float64 {
	if e.Opacity <= 0 || e.Opacity > 1 {
		return 1
	}
	return e.Opacity
}

// Template is an immutable design definition for the duration of a batch.
type Template struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Background string    `json:"background,omitempty"` // hex color, default white
	Elements   []Element `json:"elements"`

	CreatedAt time.Time  `json:"created_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ShortID returns the first 8 characters of the template ID. Used by the
// csv_column distribution mode as a compact row-side reference.
func (t *Template) ShortID() string {
	if len(t.ID) <= 8 {
		return t.ID
	}
	return t.ID[:8]
}

// ElementsByZ returns the elements sorted by ascending z-index. The sort is
// stable so elements with equal z keep their declaration order.
func (t *Template) ElementsByZ() []Element {
	out := make([]Element, len(t.Elements))
	copy(out, t.Elements)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ZIndex < out[j].ZIndex
	})
	return out
}

// Validate checks the structural invariants of a template definition.
func (t *Template) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", t.Width, t.Height)
	}
	for i := range t.Elements {
		e := &t.Elements[i]
		switch e.Type {
		case ElementText:
			if e.Text == nil {
				return fmt.Errorf("element %d: text element has no text props", i)
			}
		case ElementImage:
			if e.Image == nil {
				return fmt.Errorf("element %d: image element has no image props", i)
			}
		case ElementShape:
			if e.Shape == nil {
				return fmt.Errorf("element %d: shape element has no shape props", i)
			}
		default:
			return fmt.Errorf("element %d: unknown element type %q", i, e.Type)
		}
	}
	return nil
}

// ParseTemplateDefinition decodes a stored JSON definition into a Template
// and validates it.
func ParseTemplateDefinition(id, name string, definition []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(definition, &t); err != nil {
		return nil, fmt.Errorf("invalid template definition: %w", err)
	}
	t.ID = id
	t.Name = strings.TrimSpace(name)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Row is one record of tabular input data driving one generated output.
type Row map[string]string

// FieldMapping associates a template dynamic field name with a row column.
type FieldMapping map[string]string

// Resolve looks up the row value bound to a dynamic field. ok is false when
// the mapping or the row column is missing, or the value is empty.
func (m FieldMapping) Resolve(field string, row Row) (string, bool) {
	column, found := m[field]
	if !found {
		return "", false
	}
	v, found := row[column]
	if !found || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
