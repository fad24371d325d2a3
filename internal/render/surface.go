package render

import (
	"fmt"
	"image"
	"image/draw"
)

// Surface is a reusable rendering canvas with fixed output dimensions.
// A surface is exclusively owned by at most one in-flight render task;
// ownership is handed out by the Pool.
type Surface struct {
	img    *image.RGBA
	width  int
	height int
}

// maxSurfaceDim bounds a single canvas side. 16k at 2x scale is already far
// beyond what design templates produce; anything larger is a bad request.
const maxSurfaceDim = 16384

// NewSurface allocates a canvas with the given pixel dimensions.
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface dimensions must be positive, got %dx%d", width, height)
	}
	if width > maxSurfaceDim || height > maxSurfaceDim {
		return nil, fmt.Errorf("surface dimensions %dx%d exceed maximum %d", width, height, maxSurfaceDim)
	}
	return &Surface{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}, nil
}

// Image exposes the backing canvas for compositing.
func (s *Surface) Image() *image.RGBA { return s.img }

func (s *Surface) Width() int  { return s.width }
func (s *Surface) Height() int { return s.height }

// Clear resets every pixel to transparent black so the surface can be
// reused by the next task.
func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}
