// Package encode turns captured frames into an animated image.
//
// An Encoder creates a Handle for one animation of fixed size. Frames are
// added in display order and snapshotted immediately, so the caller may reuse
// or release the source surface as soon as AddFrame returns. Finalize does the
// expensive work (palette quantisation and compression) and yields the encoded
// bytes; Abort discards everything and makes a pending or future Finalize fail.
package encode

import (
	"context"
	"image"
	"time"

	"github.com/matzehuels/seqexport/pkg/errors"
)

// FormatGIF is the native output format of the GIF encoder.
const FormatGIF = "gif"

const (
	// DefaultQuality matches the sampling factor of common browser GIF
	// encoders: lower is better, 10 is the usual default.
	DefaultQuality = 10

	// DitherQualityThreshold is the highest quality value that still enables
	// Floyd-Steinberg dithering during quantisation.
	DitherQualityThreshold = 10
)

// ErrAborted is returned by handles after Abort was called.
var ErrAborted = errors.New(errors.ErrCodeExportCancelled, "encoder aborted")

// Options configures an animation.
type Options struct {
	// FPS is informational; the per-frame delay passed to AddFrame wins.
	FPS float64

	// Quality is 1 (best) to 30 (fastest). Zero selects DefaultQuality.
	Quality int

	// Repeat is the loop count: 0 loops forever, -1 plays once, n repeats n
	// extra times.
	Repeat int
}

func (o *Options) setDefaults() {
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.Repeat < -1 {
		o.Repeat = -1
	}
}

// Handle accumulates frames for one animation.
type Handle interface {
	// AddFrame snapshots frame and records how long it is shown.
	AddFrame(frame image.Image, delay time.Duration) error

	// Finalize encodes all frames. It may be called once.
	Finalize(ctx context.Context) ([]byte, error)

	// Abort drops all frames. It never blocks.
	Abort()
}

// Encoder creates animation handles.
type Encoder interface {
	Create(width, height int, opts Options) (Handle, error)

	// Format returns the file format produced by Finalize.
	Format() string
}
