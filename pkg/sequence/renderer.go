package sequence

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/errors"
)

// Style holds the colours used by the renderer.
type Style struct {
	Background color.RGBA
	Cell       color.RGBA
	Grid       color.RGBA
	Highlight  color.RGBA

	// Fade is how far inactive props are blended towards the cell colour,
	// from 0 (full colour) to 1 (invisible).
	Fade float64
}

// DefaultStyle is a light theme.
var DefaultStyle = Style{
	Background: color.RGBA{R: 0xfa, G: 0xfa, B: 0xf7, A: 0xff},
	Cell:       color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	Grid:       color.RGBA{R: 0xc8, G: 0xc8, B: 0xc8, A: 0xff},
	Highlight:  color.RGBA{R: 0xff, G: 0xe0, B: 0x8a, A: 0xff},
	Fade:       0.6,
}

// Renderer draws a sequence as a grid of beat cells. The active beat cell is
// highlighted and shows its props in motion; every other cell shows the
// props frozen at that cell's beat.
type Renderer struct {
	seq   *Sequence
	plan  dimension.LayoutPlan
	style Style
	props []propPaint
}

type propPaint struct {
	prop   *Prop
	active color.RGBA
	faded  color.RGBA
}

// NewRenderer prepares a renderer for seq laid out by plan.
func NewRenderer(seq *Sequence, plan dimension.LayoutPlan, style Style) (*Renderer, error) {
	cells := seq.Beats
	if seq.StartPosition {
		cells++
	}
	if plan.Layout().Cells() < cells {
		return nil, errors.New(errors.ErrCodeInvalidDimensionInput,
			"layout %dx%d cannot hold %d cells", plan.Columns, plan.Rows, cells)
	}
	if plan.BeatPixelSize < 1 {
		return nil, errors.New(errors.ErrCodeInvalidDimensionInput, "beat cell size must be positive")
	}

	cell, _ := colorful.MakeColor(style.Cell)
	r := &Renderer{seq: seq, plan: plan, style: style}
	for i := range seq.Props {
		p := &seq.Props[i]
		c, err := colorful.Hex(p.Color)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidSequence, err, "prop %q color", p.Name)
		}
		r.props = append(r.props, propPaint{
			prop:   p,
			active: rgba(c),
			faded:  rgba(c.BlendLab(cell, style.Fade)),
		})
	}
	return r, nil
}

// Plan returns the layout the renderer draws into.
func (r *Renderer) Plan() dimension.LayoutPlan { return r.plan }

// ActiveBeat returns the sequence beat whose cell is highlighted at a
// playback position: beat b animates the move into beat floor(b)+1.
func (r *Renderer) ActiveBeat(beat float64) int {
	if math.IsNaN(beat) || beat < 0 {
		beat = 0
	}
	k := int(math.Floor(beat)) + 1
	if k > r.seq.Beats {
		k = r.seq.Beats
	}
	return k
}

// CellRect returns the pixel rectangle of the cell showing sequence beat k,
// and false when beat k has no cell.
func (r *Renderer) CellRect(k int) (image.Rectangle, bool) {
	idx := k
	if !r.seq.StartPosition {
		idx--
	}
	if idx < 0 || k > r.seq.Beats {
		return image.Rectangle{}, false
	}
	size := r.plan.BeatPixelSize
	col, row := idx%r.plan.Columns, idx/r.plan.Columns
	origin := image.Pt(col*size, r.plan.AdditionalHeightTop+row*size)
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(size, size))}, true
}

// RenderFrame draws the whole grid at a playback position.
func (r *Renderer) RenderFrame(surface *canvas.Surface, beat float64) error {
	if surface.Width() != r.plan.Width() || surface.Height() != r.plan.Height() {
		return errors.New(errors.ErrCodeInvalidDimensionInput,
			"surface is %dx%d, layout needs %dx%d", surface.Width(), surface.Height(), r.plan.Width(), r.plan.Height())
	}
	surface.Fill(r.style.Background)
	img := surface.Image()

	active := r.ActiveBeat(beat)
	first := 1
	if r.seq.StartPosition {
		first = 0
	}
	for k := first; k <= r.seq.Beats; k++ {
		rect, _ := r.CellRect(k)
		bg := r.style.Cell
		if k == active {
			bg = r.style.Highlight
		}
		fill(img, rect, bg)
		outline(img, rect, r.style.Grid)

		cell := img.SubImage(rect.Inset(1)).(*image.RGBA)
		for _, pp := range r.props {
			if k == active {
				drawProp(cell, rect, pp.prop.PoseAt(beat), pp.active)
			} else {
				drawProp(cell, rect, pp.prop.PoseAt(float64(k)), pp.faded)
			}
		}
	}
	return nil
}

// drawProp draws a staff centred on the pose, with a ball marking the head.
func drawProp(dst *image.RGBA, cell image.Rectangle, pose Pose, c color.RGBA) {
	size := float64(cell.Dx())
	half := size / 2
	cx := float64(cell.Min.X) + half + pose.X*half*0.8
	cy := float64(cell.Min.Y) + half + pose.Y*half*0.8

	length := size * 0.35
	width := math.Max(2, size/48)
	rad := pose.Angle * math.Pi / 180
	dx, dy := math.Cos(rad)*length, math.Sin(rad)*length

	line(dst, cx-dx, cy-dy, cx+dx, cy+dy, width/2, c)
	disc(dst, cx+dx, cy+dy, width*1.6, c)
	disc(dst, cx, cy, width, c)
}

func fill(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func outline(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fill(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fill(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fill(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// line strokes a segment by stamping discs every half pixel.
func line(dst *image.RGBA, x0, y0, x1, y1, radius float64, c color.RGBA) {
	steps := int(math.Ceil(math.Hypot(x1-x0, y1-y0) * 2))
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		disc(dst, lerp(x0, x1, t), lerp(y0, y1, t), radius, c)
	}
}

// disc fills a circle, clipped to dst's bounds.
func disc(dst *image.RGBA, cx, cy, radius float64, c color.RGBA) {
	r2 := radius * radius
	box := image.Rect(
		int(math.Floor(cx-radius)), int(math.Floor(cy-radius)),
		int(math.Ceil(cx+radius))+1, int(math.Ceil(cy+radius))+1,
	).Intersect(dst.Rect)
	for y := box.Min.Y; y < box.Max.Y; y++ {
		fy := float64(y) + 0.5 - cy
		for x := box.Min.X; x < box.Max.X; x++ {
			fx := float64(x) + 0.5 - cx
			if fx*fx+fy*fy <= r2 {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

func rgba(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
