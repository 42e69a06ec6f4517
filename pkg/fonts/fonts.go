// Package fonts provides the faces used to draw text onto exported frames.
//
// The Go font family ships inside golang.org/x/image, so no font files need
// to be installed on the host running an export.
package fonts

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Weight selects a member of the font family.
type Weight int

const (
	Regular Weight = iota
	Bold
)

// Parsed fonts (computed once on first access).
var (
	parsed     [2]*sfnt.Font
	parseErr   [2]error
	parsedOnce [2]sync.Once
)

func load(w Weight) (*sfnt.Font, error) {
	if w != Regular && w != Bold {
		w = Regular
	}
	parsedOnce[w].Do(func() {
		data := goregular.TTF
		if w == Bold {
			data = gobold.TTF
		}
		parsed[w], parseErr[w] = opentype.Parse(data)
	})
	return parsed[w], parseErr[w]
}

// Face returns a face of the given weight at size pixels (72 DPI).
// Faces are not safe for concurrent use; callers own the returned face and
// should Close it when done.
func Face(w Weight, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %v", size)
	}
	f, err := load(w)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
