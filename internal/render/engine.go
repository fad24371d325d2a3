package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"forge/internal/models"
	"forge/internal/pkg/logger"
)

// Config controls the encoded output of a render.
type Config struct {
	// Format is "jpeg" (default) or "png".
	Format string `json:"format,omitempty"`
	// Quality is the JPEG quality, default 90.
	Quality int `json:"quality,omitempty"`
	// Scale is the resolution multiplier, clamped to [1, 2].
	Scale float64 `json:"scale,omitempty"`
}

func (c Config) normalized() Config {
	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "png":
		c.Format = "png"
	default:
		c.Format = "jpeg"
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 90
	}
	if c.Scale < 1 {
		c.Scale = 1
	} else if c.Scale > 2 {
		c.Scale = 2
	}
	return c
}

// Ext returns the file extension for the configured format.
func (c Config) Ext() string {
	if c.normalized().Format == "png" {
		return ".png"
	}
	return ".jpg"
}

// ContentType returns the MIME type for the configured format.
func (c Config) ContentType() string {
	if c.normalized().Format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Engine composites one template plus one row of data onto a rendering
// surface and encodes the result. The engine holds no per-batch state; the
// image cache and the surface are passed in per call.
type Engine struct {
	fonts  *FontCache
	client *http.Client
	log    *logger.Logger
}

// NewEngine creates a render engine. client is used only for the direct
// per-element fetch fallback when the batch cache misses; nil gets a default
// client.
func NewEngine(fonts *FontCache, client *http.Client, log *logger.Logger) *Engine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{
		fonts:  fonts,
		client: client,
		log:    log.WithComponent("engine"),
	}
}

// Render draws the template onto the surface using the row data and returns
// the encoded bytes plus any per-field fallback warnings. Systemic failures
// (bad template geometry, font setup, encoding) return an error and are
// handled at the task level by the orchestrator; missing or broken row
// values degrade to the static value or a blank element with a warning.
func (e *Engine) Render(ctx context.Context, tpl *models.Template, cfg Config, surface *Surface, row models.Row, mapping models.FieldMapping, cache *ImageCache) ([]byte, []string, error) {
	cfg = cfg.normalized()
	if tpl.Width <= 0 || tpl.Height <= 0 {
		return nil, nil, fmt.Errorf("template %s has invalid canvas %dx%d", tpl.ID, tpl.Width, tpl.Height)
	}

	// The surface is sized by the pool to canvas * multiplier; deriving the
	// scale from it keeps engine and pool agreeing by construction.
	scale := float64(surface.Width()) / float64(tpl.Width)

	dst := surface.Image()
	bg := colorOrDefault(tpl.Background, colorWhite)
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	var warnings []string

	for _, el := range tpl.ElementsByZ() {
		if el.Hidden {
			continue
		}

		var err error
		var warns []string

		switch el.Type {
		case models.ElementText:
			warns, err = e.drawText(dst, &el, row, mapping, scale)
		case models.ElementImage:
			warns, err = e.drawImage(ctx, dst, &el, row, mapping, cache, scale)
		case models.ElementShape:
			err = e.drawShape(dst, &el, scale)
		default:
			err = fmt.Errorf("unknown element type %q", el.Type)
		}

		warnings = append(warnings, warns...)
		if err != nil {
			return nil, warnings, fmt.Errorf("element %s (%s): %w", el.ID, el.Type, err)
		}
	}

	data, err := encodeImage(dst, cfg)
	if err != nil {
		return nil, warnings, err
	}
	return data, warnings, nil
}

// resolveDynamic returns the value for an element honoring its dynamic
// binding: the mapped row value when present, otherwise the static value
// with a warning.
func resolveDynamic(el *models.Element, static string, row models.Row, mapping models.FieldMapping) (string, string) {
	if el.DynamicField == "" {
		return static, ""
	}
	if v, ok := mapping.Resolve(el.DynamicField, row); ok {
		return v, ""
	}
	return static, fmt.Sprintf("field %q has no row value, using static fallback", el.DynamicField)
}

func (e *Engine) drawText(dst *image.RGBA, el *models.Element, row models.Row, mapping models.FieldMapping, scale float64) ([]string, error) {
	props := el.Text
	content, warn := resolveDynamic(el, props.Content, row, mapping)

	var warnings []string
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if strings.TrimSpace(content) == "" {
		return warnings, nil
	}

	w := int(math.Ceil(el.Width * scale))
	h := int(math.Ceil(el.Height * scale))
	if w <= 0 || h <= 0 {
		return warnings, fmt.Errorf("invalid text bounds %vx%v", el.Width, el.Height)
	}

	// Text is rendered into its own layer so rotation and opacity apply to
	// the block as a whole.
	layer := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := e.drawTextBlock(layer, props, content, scale); err != nil {
		return warnings, err
	}

	compositeOver(dst, layer, el.X*scale, el.Y*scale, float64(w), float64(h), el.Rotation, el.EffectiveOpacity())
	return warnings, nil
}

// styledRun is a contiguous slice of a text line sharing one color and size.
type styledRun struct {
	text  string
	color color.NRGBA
	size  float64
}

// drawTextBlock lays out the content line by line inside the layer,
// honoring alignment and per-character style overrides.
func (e *Engine) drawTextBlock(layer *image.RGBA, props *models.TextProps, content string, scale float64) error {
	baseSize := props.FontSize
	if baseSize <= 0 {
		baseSize = 16
	}
	baseSize *= scale
	baseColor := colorOrDefault(props.Color, colorBlack)

	lineHeight := props.LineHeight
	if lineHeight <= 0 {
		lineHeight = 1.2
	}

	width := layer.Bounds().Dx()
	lines := strings.Split(content, "\n")
	offset := 0 // rune offset of the current line within content

	baseFace, err := e.fonts.Face(props.FontFamily, baseSize)
	if err != nil {
		return err
	}
	y := baseFace.Metrics().Ascent

	// Faces are built lazily per distinct override size and reused within
	// this block only; they are not shared across goroutines.
	faces := map[float64]font.Face{baseSize: baseFace}
	faceFor := func(size float64) (font.Face, error) {
		if f, ok := faces[size]; ok {
			return f, nil
		}
		f, err := e.fonts.Face(props.FontFamily, size)
		if err != nil {
			return nil, err
		}
		faces[size] = f
		return f, nil
	}

	for _, line := range lines {
		runs := splitRuns(line, offset, props.CharStyles, baseColor, baseSize, scale)

		var lineWidth fixed.Int26_6
		for _, run := range runs {
			f, err := faceFor(run.size)
			if err != nil {
				return err
			}
			lineWidth += font.MeasureString(f, run.text)
		}

		x := fixed.I(0)
		switch strings.ToLower(props.Align) {
		case "center":
			x = (fixed.I(width) - lineWidth) / 2
		case "right":
			x = fixed.I(width) - lineWidth
		}

		dot := fixed.Point26_6{X: x, Y: y}
		for _, run := range runs {
			f, err := faceFor(run.size)
			if err != nil {
				return err
			}
			d := &font.Drawer{
				Dst:  layer,
				Src:  image.NewUniform(run.color),
				Face: f,
				Dot:  dot,
			}
			d.DrawString(run.text)
			dot = d.Dot
		}

		offset += len([]rune(line)) + 1 // +1 for the newline
		y += fixed.Int26_6(baseSize * lineHeight * 64)
	}
	return nil
}

// splitRuns cuts one line into style runs. Overrides are addressed by rune
// offsets over the whole content; lineOffset is the line's starting offset.
func splitRuns(line string, lineOffset int, overrides []models.CharStyle, baseColor color.NRGBA, baseSize, scale float64) []styledRun {
	runes := []rune(line)
	if len(runes) == 0 {
		return nil
	}
	if len(overrides) == 0 {
		return []styledRun{{text: line, color: baseColor, size: baseSize}}
	}

	styleAt := func(i int) (color.NRGBA, float64) {
		c, s := baseColor, baseSize
		global := lineOffset + i
		for _, ov := range overrides {
			if global < ov.Start || global >= ov.End {
				continue
			}
			if ov.Color != "" {
				c = colorOrDefault(ov.Color, c)
			}
			if ov.FontSize > 0 {
				s = ov.FontSize * scale
			}
		}
		return c, s
	}

	var runs []styledRun
	start := 0
	curColor, curSize := styleAt(0)
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) {
			c, s := styleAt(i)
			if c == curColor && s == curSize {
				continue
			}
			runs = append(runs, styledRun{text: string(runes[start:i]), color: curColor, size: curSize})
			start, curColor, curSize = i, c, s
			continue
		}
		runs = append(runs, styledRun{text: string(runes[start:i]), color: curColor, size: curSize})
	}
	return runs
}

func (e *Engine) drawImage(ctx context.Context, dst *image.RGBA, el *models.Element, row models.Row, mapping models.FieldMapping, cache *ImageCache, scale float64) ([]string, error) {
	props := el.Image
	url, warn := resolveDynamic(el, props.URL, row, mapping)

	var warnings []string
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if strings.TrimSpace(url) == "" {
		warnings = append(warnings, fmt.Sprintf("image element %s has no source, left blank", el.ID))
		return warnings, nil
	}

	var data []byte
	if cache != nil {
		if entry, ok := cache.Get(url); ok {
			data = entry.Data
		}
	}
	if data == nil {
		// Cache miss: fall back to a direct fetch for this element only.
		fetched, err := e.fetchDirect(ctx, url)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("image %q unavailable, left blank: %v", url, err))
			return warnings, nil
		}
		data = fetched
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("image %q is not decodable, left blank: %v", url, err))
		return warnings, nil
	}

	srcRect := src.Bounds()
	if strings.EqualFold(props.Fit, "cover") {
		srcRect = coverRect(srcRect, el.Width, el.Height)
	}

	compositeRegion(dst, src, srcRect, el.X*scale, el.Y*scale, el.Width*scale, el.Height*scale, el.Rotation, el.EffectiveOpacity())
	return warnings, nil
}

func (e *Engine) fetchDirect(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ResolveTargetURL(rawURL), nil)
	if err != nil {
		return nil, err
	}
	res, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func (e *Engine) drawShape(dst *image.RGBA, el *models.Element, scale float64) error {
	props := el.Shape
	w := int(math.Ceil(el.Width * scale))
	h := int(math.Ceil(el.Height * scale))
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid shape bounds %vx%v", el.Width, el.Height)
	}

	fill := colorOrDefault(props.Fill, colorBlack)
	layer := image.NewRGBA(image.Rect(0, 0, w, h))

	switch strings.ToLower(props.Kind) {
	case "rectangle", "rect", "":
		draw.Draw(layer, layer.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
		if props.Stroke != "" && props.StrokeWidth > 0 {
			strokeRect(layer, colorOrDefault(props.Stroke, colorBlack), int(math.Round(props.StrokeWidth*scale)))
		}
	case "ellipse", "circle":
		fillEllipse(layer, fill)
	default:
		return fmt.Errorf("unknown shape kind %q", props.Kind)
	}

	compositeOver(dst, layer, el.X*scale, el.Y*scale, float64(w), float64(h), el.Rotation, el.EffectiveOpacity())
	return nil
}

// strokeRect paints an inset border of the given width onto the layer.
func strokeRect(layer *image.RGBA, c color.NRGBA, width int) {
	b := layer.Bounds()
	if width <= 0 {
		return
	}
	if width*2 > b.Dx() || width*2 > b.Dy() {
		draw.Draw(layer, b, image.NewUniform(c), image.Point{}, draw.Src)
		return
	}
	u := image.NewUniform(c)
	draw.Draw(layer, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width), u, image.Point{}, draw.Src)
	draw.Draw(layer, image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(layer, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y), u, image.Point{}, draw.Src)
	draw.Draw(layer, image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y), u, image.Point{}, draw.Src)
}

// fillEllipse rasterizes an axis-aligned ellipse inscribed in the layer
// bounds, with edge antialiasing from subpixel coverage.
func fillEllipse(layer *image.RGBA, c color.NRGBA) {
	b := layer.Bounds()
	w, h := b.Dx(), b.Dy()
	cx := float64(w) / 2
	cy := float64(h) / 2
	rx := cx
	ry := cy

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			d := dx*dx + dy*dy
			if d > 1.05 {
				continue
			}
			px := c
			if d > 0.95 {
				// soften the rim
				cover := (1.05 - d) / 0.10
				if cover < 0 {
					cover = 0
				} else if cover > 1 {
					cover = 1
				}
				px.A = uint8(float64(c.A)*cover + 0.5)
			}
			layer.Set(b.Min.X+x, b.Min.Y+y, px)
		}
	}
}

// compositeOver draws src scaled into the (x, y, w, h) rectangle of dst,
// rotated about the rectangle center and blended with the given opacity.
func compositeOver(dst *image.RGBA, src image.Image, x, y, w, h, rotationDeg, opacity float64) {
	compositeRegion(dst, src, src.Bounds(), x, y, w, h, rotationDeg, opacity)
}

func compositeRegion(dst *image.RGBA, src image.Image, srcRect image.Rectangle, x, y, w, h, rotationDeg, opacity float64) {
	sw := float64(srcRect.Dx())
	sh := float64(srcRect.Dy())
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return
	}

	sx := w / sw
	sy := h / sh
	theta := rotationDeg * math.Pi / 180
	cos := math.Cos(theta)
	sin := math.Sin(theta)

	// Row-major affine: dst = T(center) * R(theta) * S(sx, sy) * T(-srcCenter).
	a := cos * sx
	b := -sin * sy
	c := sin * sx
	d := cos * sy

	cx := x + w/2
	cy := y + h/2
	mx := float64(srcRect.Min.X) + sw/2
	my := float64(srcRect.Min.Y) + sh/2
	tx := cx - (a*mx + b*my)
	ty := cy - (c*mx + d*my)

	m := f64.Aff3{a, b, tx, c, d, ty}

	opts := &xdraw.Options{}
	if opacity < 1 {
		opts.SrcMask = image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	}
	xdraw.ApproxBiLinear.Transform(dst, m, src, srcRect, xdraw.Over, opts)
}

// coverRect returns the centered sub-rectangle of bounds matching the
// target aspect ratio, for "cover" image fitting.
func coverRect(bounds image.Rectangle, targetW, targetH float64) image.Rectangle {
	if targetW <= 0 || targetH <= 0 {
		return bounds
	}
	sw := float64(bounds.Dx())
	sh := float64(bounds.Dy())
	targetRatio := targetW / targetH
	srcRatio := sw / sh

	switch {
	case srcRatio > targetRatio:
		// source too wide, crop left/right
		cropW := sh * targetRatio
		inset := int((sw - cropW) / 2)
		return image.Rect(bounds.Min.X+inset, bounds.Min.Y, bounds.Max.X-inset, bounds.Max.Y)
	case srcRatio < targetRatio:
		// source too tall, crop top/bottom
		cropH := sw / targetRatio
		inset := int((sh - cropH) / 2)
		return image.Rect(bounds.Min.X, bounds.Min.Y+inset, bounds.Max.X, bounds.Max.Y-inset)
	default:
		return bounds
	}
}

func encodeImage(img image.Image, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	switch cfg.normalized().Format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: cfg.normalized().Quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}
