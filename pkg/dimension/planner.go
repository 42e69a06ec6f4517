// Package dimension computes the pixel size of composed sequence images.
//
// A sequence of N beats is laid out as a grid of equally sized beat cells,
// optionally preceded by a start-position cell. The grid shape comes from a
// fixed reference table for 0..64 beats and from a geometric fallback beyond
// that. Optional title and footer bands add height above and below the grid.
//
// Everything here is a pure function of its inputs; the results feed the
// canvas pool so callers request correctly sized surfaces.
//
// # Usage
//
//	plan, err := dimension.Plan(dimension.Request{
//	    BeatCount:            5,
//	    IncludeStartPosition: true,
//	    Scale:                1,
//	})
//	w, h := plan.Width(), plan.Height() // 576, 288
package dimension

import (
	"math"

	"github.com/matzehuels/seqexport/pkg/errors"
)

const (
	// BaseBeatSize is the unscaled edge length of one beat cell in pixels.
	BaseBeatSize = 144

	// MaxTableBeats is the largest beat count covered by the reference tables.
	MaxTableBeats = 64

	// MaxBeatCount guards against unbounded canvas allocation downstream.
	MaxBeatCount = 1000

	// FallbackAspectRatio is the columns/rows ratio targeted past the tables.
	FallbackAspectRatio = 1.2
)

// Layout is a grid shape in beat cells.
type Layout struct {
	Columns int `json:"columns"`
	Rows    int `json:"rows"`
}

// Cells returns the number of cells in the grid.
func (l Layout) Cells() int { return l.Columns * l.Rows }

// LayoutPlan is the full sizing decision for one composed image.
// It is immutable once computed.
type LayoutPlan struct {
	Columns                int `json:"columns"`
	Rows                   int `json:"rows"`
	BeatPixelSize          int `json:"beat_pixel_size"`
	AdditionalHeightTop    int `json:"additional_height_top"`
	AdditionalHeightBottom int `json:"additional_height_bottom"`

	scale float64
}

// Layout returns the grid portion of the plan.
func (p LayoutPlan) Layout() Layout {
	return Layout{Columns: p.Columns, Rows: p.Rows}
}

// Width returns the image width in pixels.
func (p LayoutPlan) Width() int {
	w, _ := imageDimensions(p.Layout(), 0, p.scale)
	return w
}

// Height returns the image height in pixels including both bands.
func (p LayoutPlan) Height() int {
	_, h := imageDimensions(p.Layout(), float64(p.AdditionalHeightTop+p.AdditionalHeightBottom), p.scale)
	return h
}

// Request holds the inputs to Plan.
type Request struct {
	BeatCount            int
	IncludeStartPosition bool
	Scale                float64
	WantTitle            bool
	WantFooter           bool
}

// Plan computes the complete LayoutPlan for a request.
func Plan(req Request) (LayoutPlan, error) {
	layout, err := LayoutFor(req.BeatCount, req.IncludeStartPosition)
	if err != nil {
		return LayoutPlan{}, err
	}
	top, bottom, err := AdditionalHeights(req.BeatCount, req.Scale, req.WantTitle, req.WantFooter)
	if err != nil {
		return LayoutPlan{}, err
	}
	return LayoutPlan{
		Columns:                layout.Columns,
		Rows:                   layout.Rows,
		BeatPixelSize:          int(math.Floor(BaseBeatSize * req.Scale)),
		AdditionalHeightTop:    top,
		AdditionalHeightBottom: bottom,
		scale:                  req.Scale,
	}, nil
}

// LayoutFor returns the grid shape for beatCount beats. Counts covered by the
// reference tables are looked up verbatim; larger counts use Fallback.
func LayoutFor(beatCount int, includeStartPosition bool) (Layout, error) {
	if err := validateBeatCount(beatCount); err != nil {
		return Layout{}, err
	}
	if beatCount > MaxTableBeats {
		return Fallback(beatCount, includeStartPosition), nil
	}
	g := layoutsWithoutStart[beatCount]
	if includeStartPosition {
		g = layoutsWithStart[beatCount]
	}
	return Layout{Columns: g.columns, Rows: g.rows}, nil
}

// Fallback computes a near-1.2 aspect grid holding beatCount beats plus the
// optional start cell. The result always has at least that many cells.
func Fallback(beatCount int, includeStartPosition bool) Layout {
	cells := beatCount
	if includeStartPosition {
		cells++
	}
	if cells < 1 {
		cells = 1
	}
	rows := int(math.Round(math.Sqrt(float64(cells) / FallbackAspectRatio)))
	if rows < 1 {
		rows = 1
	}
	columns := (cells + rows - 1) / rows
	return Layout{Columns: columns, Rows: rows}
}

// ImageDimensions converts a layout to pixels. additionalHeight is added to
// the grid height before flooring.
func ImageDimensions(layout Layout, additionalHeight, scale float64) (width, height int, err error) {
	if err := errors.ValidateScale(scale); err != nil {
		return 0, 0, err
	}
	if layout.Columns < 0 || layout.Rows < 0 {
		return 0, 0, errors.New(errors.ErrCodeInvalidDimensionInput, "layout %dx%d has negative size", layout.Columns, layout.Rows)
	}
	if additionalHeight < 0 || math.IsNaN(additionalHeight) || math.IsInf(additionalHeight, 0) {
		return 0, 0, errors.New(errors.ErrCodeInvalidDimensionInput, "additional height must be a finite non-negative number, got %v", additionalHeight)
	}
	width, height = imageDimensions(layout, additionalHeight, scale)
	return width, height, nil
}

func imageDimensions(layout Layout, additionalHeight, scale float64) (int, int) {
	w := math.Floor(float64(layout.Columns) * BaseBeatSize * scale)
	h := math.Floor(float64(layout.Rows)*BaseBeatSize*scale + additionalHeight)
	return int(w), int(h)
}

// AdditionalHeights returns the scaled title (top) and footer (bottom) band
// heights. Each band is zero when its flag is false.
func AdditionalHeights(beatCount int, scale float64, wantTitle, wantFooter bool) (top, bottom int, err error) {
	if err := validateBeatCount(beatCount); err != nil {
		return 0, 0, err
	}
	if err := errors.ValidateScale(scale); err != nil {
		return 0, 0, err
	}
	bucket := beatCount
	if bucket > 3 {
		bucket = 3
	}
	if wantTitle {
		top = int(math.Floor(titleHeights[bucket] * scale))
	}
	if wantFooter {
		bottom = int(math.Floor(footerHeights[bucket] * scale))
	}
	return top, bottom, nil
}

func validateBeatCount(beatCount int) error {
	if beatCount < 0 {
		return errors.New(errors.ErrCodeInvalidDimensionInput, "beat count must be non-negative, got %d", beatCount)
	}
	if beatCount > MaxBeatCount {
		return errors.New(errors.ErrCodeInvalidDimensionInput, "beat count %d exceeds the maximum of %d", beatCount, MaxBeatCount)
	}
	return nil
}
