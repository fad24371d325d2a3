package render

import (
	"testing"

	"golang.org/x/image/font/gofont/gobold"
)

func TestFontCacheDefaultFallback(t *testing.T) {
	fc, err := NewFontCache()
	if err != nil {
		t.Fatal(err)
	}

	face, err := fc.Face("no-such-family", 24)
	if err != nil {
		t.Fatal(err)
	}
	if face == nil {
		t.Fatal("expected a fallback face for an unknown family")
	}
}

func TestFontCacheRegister(t *testing.T) {
	fc, err := NewFontCache()
	if err != nil {
		t.Fatal(err)
	}

	if err := fc.Register("Heading Bold", gobold.TTF); err != nil {
		t.Fatal(err)
	}

	families := fc.Families()
	if len(families) != 1 || families[0] != "heading bold" {
		t.Fatalf("Families() = %v, want [heading bold]", families)
	}

	// Family lookup is case-insensitive.
	if _, err := fc.Face("HEADING BOLD", 18); err != nil {
		t.Fatal(err)
	}
}

func TestFontCacheRegisterRejectsGarbage(t *testing.T) {
	fc, err := NewFontCache()
	if err != nil {
		t.Fatal(err)
	}
	if err := fc.Register("broken", []byte("definitely not a font")); err == nil {
		t.Fatal("expected parse error for invalid font data")
	}
}

func TestFontCacheFaceIsFreshPerCall(t *testing.T) {
	fc, err := NewFontCache()
	if err != nil {
		t.Fatal(err)
	}

	// Faces are not safe for concurrent use, so every call must build its
	// own instance.
	f1, err := fc.Face("", 16)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := fc.Face("", 16)
	if err != nil {
		t.Fatal(err)
	}
	if f1 == f2 {
		t.Fatal("expected distinct face instances per call")
	}
}

func TestFontCacheLoadDirMissing(t *testing.T) {
	fc, err := NewFontCache()
	if err != nil {
		t.Fatal(err)
	}
	if err := fc.LoadDir("/no/such/dir"); err != nil {
		t.Fatalf("missing font dir should not be an error, got %v", err)
	}
}
