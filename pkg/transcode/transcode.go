// Package transcode converts encoded animations into other formats.
//
// The GIF encoder is the only native encoder; WebP output is produced by
// handing the finished GIF to ffmpeg's libwebp encoder. Results can be
// memoised with Cached, keyed by a hash of the input bytes.
package transcode

import (
	"context"

	"github.com/matzehuels/seqexport/pkg/errors"
)

// FormatWebP is the only transcode target currently supported.
const FormatWebP = "webp"

// Defaults for WebP output.
const (
	DefaultQuality = 80
	DefaultBinary  = "ffmpeg"
)

// Options control a conversion.
type Options struct {
	// Format is the target format.
	Format string

	// Quality is 0-100; zero selects DefaultQuality.
	Quality int

	// Lossless selects lossless WebP.
	Lossless bool

	// Loop is the loop count written to the output; 0 loops forever.
	Loop int
}

// ValidateAndSetDefaults checks the target format and fills defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Format == "" {
		o.Format = FormatWebP
	}
	if o.Format != FormatWebP {
		return errors.New(errors.ErrCodeUnsupported, "cannot transcode to %q", o.Format)
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality < 0 || o.Quality > 100 {
		return errors.New(errors.ErrCodeInvalidInput, "quality %d out of range 0-100", o.Quality)
	}
	if o.Loop < 0 {
		o.Loop = 0
	}
	return nil
}

// Transcoder converts a blob from one animated format to another.
type Transcoder interface {
	Convert(ctx context.Context, blob []byte, opts Options) ([]byte, error)
}
