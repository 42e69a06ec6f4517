package canvas

import (
	"image"
	"image/color"
	"image/draw"
)

// BytesPerPixel is the attributed cost of one RGBA pixel.
const BytesPerPixel = 4

// Surface is a mutable RGBA raster handed out by a Pool.
//
// A Surface is owned by whoever acquired it until it is passed back to
// Pool.Release. Pixels must not be read or written after release.
type Surface struct {
	img *image.RGBA
	id  uint64
}

func newSurface(id uint64, width, height int) *Surface {
	return &Surface{
		img: image.NewRGBA(image.Rect(0, 0, width, height)),
		id:  id,
	}
}

// ID returns the pool-assigned identity of the surface.
func (s *Surface) ID() uint64 { return s.id }

// Width returns the width in pixels.
func (s *Surface) Width() int { return s.img.Rect.Dx() }

// Height returns the height in pixels.
func (s *Surface) Height() int { return s.img.Rect.Dy() }

// Bounds returns the pixel rectangle, always anchored at the origin.
func (s *Surface) Bounds() image.Rectangle { return s.img.Rect }

// Bytes returns the memory attributed to this surface.
func (s *Surface) Bytes() int64 { return surfaceBytes(s.Width(), s.Height()) }

// Image exposes the backing buffer for drawing and reading.
func (s *Surface) Image() *image.RGBA { return s.img }

// Clear resets every pixel to transparent black.
func (s *Surface) Clear() {
	clear(s.img.Pix)
}

// Fill paints the whole surface with c.
func (s *Surface) Fill(c color.Color) {
	draw.Draw(s.img, s.img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func surfaceBytes(width, height int) int64 {
	return int64(width) * int64(height) * BytesPerPixel
}
