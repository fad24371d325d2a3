package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontCache holds parsed font programs keyed by family name. Parsing is done
// once; faces are built per call because a font.Face is not safe for
// concurrent use and render tasks run in parallel.
//
// Loading fonts is a batch precondition: the worker populates the cache
// before any render task starts.
type FontCache struct {
	mu          sync.Mutex
	fonts       map[string]*opentype.Font
	defaultFont *opentype.Font
}

// NewFontCache creates a cache seeded with the embedded Go Regular font as
// the default family.
func NewFontCache() (*FontCache, error) {
	def, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded default font: %w", err)
	}
	return &FontCache{
		fonts:       make(map[string]*opentype.Font),
		defaultFont: def,
	}, nil
}

// Register parses font data and stores it under the given family name.
func (fc *FontCache) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %q: %w", family, err)
	}
	fc.mu.Lock()
	fc.fonts[normalizeFamily(family)] = f
	fc.mu.Unlock()
	return nil
}

// LoadDir registers every .ttf/.otf file in dir under its base file name.
// A missing directory is not an error; individual parse failures are
// reported but do not stop the scan.
func (fc *FontCache) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		family := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if err := fc.Register(family, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Face builds a new face for the family at the given pixel size. Unknown
// families fall back to the default font. The returned face belongs to the
// caller and must not be shared across goroutines.
func (fc *FontCache) Face(family string, size float64) (font.Face, error) {
	if size <= 0 {
		size = 16
	}

	fc.mu.Lock()
	f, ok := fc.fonts[normalizeFamily(family)]
	if !ok {
		f = fc.defaultFont
	}
	fc.mu.Unlock()

	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Families lists the registered family names, excluding the default.
func (fc *FontCache) Families() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]string, 0, len(fc.fonts))
	for name := range fc.fonts {
		out = append(out, name)
	}
	return out
}

func normalizeFamily(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
