package sequence

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/fonts"
)

// TitleOverlay writes the sequence title into the top band of a frame and a
// beat counter into the bottom band. Bands with zero height are skipped.
type TitleOverlay struct {
	mu     sync.Mutex
	title  string
	beats  int
	plan   dimension.LayoutPlan
	ink    color.RGBA
	active func(float64) int

	titleFace  font.Face
	footerFace font.Face
}

// NewTitleOverlay prepares an overlay for frames drawn by r.
func NewTitleOverlay(seq *Sequence, r *Renderer, ink color.RGBA) (*TitleOverlay, error) {
	o := &TitleOverlay{
		title:  seq.Title,
		beats:  seq.Beats,
		plan:   r.Plan(),
		ink:    ink,
		active: r.ActiveBeat,
	}
	var err error
	if top := o.plan.AdditionalHeightTop; top > 0 && o.title != "" {
		if o.titleFace, err = fonts.Face(fonts.Bold, float64(top)*0.4); err != nil {
			return nil, err
		}
	}
	if bottom := o.plan.AdditionalHeightBottom; bottom > 0 {
		if o.footerFace, err = fonts.Face(fonts.Regular, float64(bottom)*0.45); err != nil {
			o.Close()
			return nil, err
		}
	}
	return o, nil
}

// DrawOverlay draws the title and beat counter for the given playback beat.
func (o *TitleOverlay) DrawOverlay(surface *canvas.Surface, beat float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	img := surface.Image()
	if o.titleFace != nil {
		band := image.Rect(0, 0, img.Rect.Dx(), o.plan.AdditionalHeightTop)
		o.centered(img, band, o.titleFace, o.title)
	}
	if o.footerFace != nil {
		band := image.Rect(0, img.Rect.Dy()-o.plan.AdditionalHeightBottom, img.Rect.Dx(), img.Rect.Dy())
		o.centered(img, band, o.footerFace, fmt.Sprintf("beat %d / %d", o.active(beat), o.beats))
	}
	return nil
}

// centered draws text centred in band. Text wider than the band is clipped.
func (o *TitleOverlay) centered(dst *image.RGBA, band image.Rectangle, face font.Face, text string) {
	m := face.Metrics()
	advance := font.MeasureString(face, text)
	x := fixed.I(band.Min.X) + (fixed.I(band.Dx())-advance)/2
	y := fixed.I(band.Min.Y) + (fixed.I(band.Dy())-m.Height)/2 + m.Ascent

	d := &font.Drawer{
		Dst:  dst.SubImage(band).(*image.RGBA),
		Src:  image.NewUniform(o.ink),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(text)
}

// Close releases the font faces.
func (o *TitleOverlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range []font.Face{o.titleFace, o.footerFace} {
		if f != nil {
			f.Close()
		}
	}
	o.titleFace, o.footerFace = nil, nil
	return nil
}
