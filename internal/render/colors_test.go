package render

import (
	"image/color"
	"testing"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{in: "#ff0000", want: color.NRGBA{R: 0xff, A: 0xff}},
		{in: "00ff00", want: color.NRGBA{G: 0xff, A: 0xff}},
		{in: "#fff", want: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
		{in: "#12345678", want: color.NRGBA{R: 0x12, G: 0x34, B: 0x56, A: 0x78}},
		{in: " #000000 ", want: color.NRGBA{A: 0xff}},
		{in: "", wantErr: true},
		{in: "#12345", wantErr: true},
		{in: "#gggggg", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseHexColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColorOrDefault(t *testing.T) {
	def := color.NRGBA{R: 1, G: 2, B: 3, A: 4}

	if got := colorOrDefault("", def); got != def {
		t.Errorf("empty input = %+v, want default", got)
	}
	if got := colorOrDefault("not-a-color", def); got != def {
		t.Errorf("malformed input = %+v, want default", got)
	}
	if got := colorOrDefault("#ffffff", def); got != colorWhite {
		t.Errorf("valid input = %+v, want white", got)
	}
}
