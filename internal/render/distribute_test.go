package render

import (
	"testing"

	"forge/internal/models"
)

func makeTemplates(names ...string) []*models.Template {
	out := make([]*models.Template, len(names))
	for i, n := range names {
		out[i] = &models.Template{
			ID:     "tpl_" + n + "_0123456789abcdef",
			Name:   n,
			Width:  800,
			Height: 600,
		}
	}
	return out
}

func makeRows(n int) []models.Row {
	out := make([]models.Row, n)
	for i := range out {
		out[i] = models.Row{}
	}
	return out
}

func assignedNames(as []Assignment) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Template.Name
	}
	return out
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeSequential},
		{in: "sequential", want: ModeSequential},
		{in: "random", want: ModeRandom},
		{in: "equal", want: ModeEqual},
		{in: "csv_column", want: ModeCSVColumn},
		{in: "roundrobin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAssignSequential(t *testing.T) {
	templates := makeTemplates("a", "b")
	as, err := AssignTemplates(templates, ModeSequential, makeRows(5), SelectorOptions{})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "a", "b", "a"}
	got := assignedNames(as)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequential assignment = %v, want %v", got, want)
		}
	}
}

func TestAssignEqual(t *testing.T) {
	tests := []struct {
		name      string
		templates []string
		rows      int
		want      []string
	}{
		{
			name:      "remainder goes to first blocks",
			templates: []string{"a", "b"},
			rows:      5,
			want:      []string{"a", "a", "a", "b", "b"},
		},
		{
			name:      "even split",
			templates: []string{"a", "b", "c"},
			rows:      6,
			want:      []string{"a", "a", "b", "b", "c", "c"},
		},
		{
			name:      "fewer rows than templates",
			templates: []string{"a", "b", "c"},
			rows:      2,
			want:      []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as, err := AssignTemplates(makeTemplates(tt.templates...), ModeEqual, makeRows(tt.rows), SelectorOptions{})
			if err != nil {
				t.Fatal(err)
			}
			got := assignedNames(as)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("equal assignment = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestAssignRandomSeedReproducible(t *testing.T) {
	templates := makeTemplates("a", "b", "c")
	seed := int64(42)

	first, err := AssignTemplates(templates, ModeRandom, makeRows(20), SelectorOptions{Seed: &seed})
	if err != nil {
		t.Fatal(err)
	}
	second, err := AssignTemplates(templates, ModeRandom, makeRows(20), SelectorOptions{Seed: &seed})
	if err != nil {
		t.Fatal(err)
	}

	for i := range first {
		if first[i].Template != second[i].Template {
			t.Fatalf("seeded random assignment differs at row %d", i)
		}
	}
}

func TestAssignCSVColumn(t *testing.T) {
	templates := makeTemplates("summer", "winter")
	rows := []models.Row{
		{"variant": templates[1].ID},       // full id
		{"variant": templates[0].ShortID()}, // short id
		{"variant": "WINTER"},               // case-insensitive name
		{"variant": "autumn"},               // no match: fallback + warning
		{},                                  // empty value: fallback + warning
	}

	as, err := AssignTemplates(templates, ModeCSVColumn, rows, SelectorOptions{Column: "variant"})
	if err != nil {
		t.Fatal(err)
	}

	wantNames := []string{"winter", "summer", "winter", "summer", "summer"}
	wantWarn := []bool{false, false, false, true, true}

	for i := range rows {
		if as[i].Template.Name != wantNames[i] {
			t.Errorf("row %d assigned %q, want %q", i, as[i].Template.Name, wantNames[i])
		}
		if (as[i].Warning != "") != wantWarn[i] {
			t.Errorf("row %d warning = %q, want warning %v", i, as[i].Warning, wantWarn[i])
		}
	}
}

func TestAssignCSVColumnRequiresColumn(t *testing.T) {
	_, err := AssignTemplates(makeTemplates("a", "b"), ModeCSVColumn, makeRows(1), SelectorOptions{})
	if err == nil {
		t.Fatal("expected error when csv_column mode has no column")
	}
}

func TestAssignSingleTemplateBypass(t *testing.T) {
	templates := makeTemplates("only")
	rows := []models.Row{{"variant": "nonsense"}, {}}

	// Even csv_column with an unmatchable value never warns with a single
	// template.
	as, err := AssignTemplates(templates, ModeCSVColumn, rows, SelectorOptions{Column: "variant"})
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range as {
		if a.Template != templates[0] {
			t.Fatalf("row %d not assigned the only template", i)
		}
		if a.Warning != "" {
			t.Fatalf("row %d has warning %q, want none", i, a.Warning)
		}
	}
}

func TestAssignNoTemplates(t *testing.T) {
	if _, err := AssignTemplates(nil, ModeSequential, makeRows(1), SelectorOptions{}); err == nil {
		t.Fatal("expected error with no templates")
	}
}
