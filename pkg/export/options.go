package export

import (
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/encode"
	"github.com/matzehuels/seqexport/pkg/errors"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI, config and server
// =============================================================================

const (
	// DefaultFormat is the output format when none is requested.
	DefaultFormat = encode.FormatGIF

	// DefaultFramesPerBeat is the temporal resolution of an export.
	DefaultFramesPerBeat = 4

	// MaxFramesPerBeat bounds the frame count of a single beat.
	MaxFramesPerBeat = 60

	// DefaultBPM is the playback tempo used to derive frame delays.
	DefaultBPM = 60.0

	// DefaultSettleDelay is how long the pipeline waits after seeking to
	// beat 0 before the first capture.
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultRenderFramesPerCapture is how many render-frame boundaries pass
	// between seeking and reading a surface.
	DefaultRenderFramesPerCapture = 2
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	encode.FormatGIF:     true,
	transcode.FormatWebP: true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be one of: gif, webp)", format)
	}
	return nil
}

// Options configures one export job.
type Options struct {
	Format        string  `json:"format,omitempty"`
	TotalBeats    int     `json:"total_beats"`
	FramesPerBeat int     `json:"frames_per_beat,omitempty"`
	BPM           float64 `json:"bpm,omitempty"`

	// Width and Height are the surface size in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Quality is the GIF quantiser quality, 1 (best) to 30.
	Quality int `json:"quality,omitempty"`

	// Repeat is the GIF loop count: 0 forever, -1 once, n extra repeats.
	Repeat int `json:"repeat,omitempty"`

	// WebPQuality and Lossless only apply to webp output.
	WebPQuality int  `json:"webp_quality,omitempty"`
	Lossless    bool `json:"lossless,omitempty"`

	SettleDelay time.Duration `json:"settle_delay,omitempty"`

	// Filename is passed to Delivery. Empty skips delivery.
	Filename string `json:"filename,omitempty"`

	// Runtime options (not serialized)
	OnProgress ProgressFunc `json:"-"`
	// OnStart is called once the job has been admitted, before the first
	// frame is captured.
	OnStart func(JobStatus) `json:"-"`
	Logger  *log.Logger     `json:"-"`

	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if err := ValidateFormat(o.Format); err != nil {
		return err
	}
	if o.TotalBeats < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "total beats must be at least 1, got %d", o.TotalBeats)
	}
	if o.TotalBeats > dimension.MaxBeatCount {
		return errors.New(errors.ErrCodeInvalidInput, "total beats %d exceeds limit %d", o.TotalBeats, dimension.MaxBeatCount)
	}
	if o.FramesPerBeat == 0 {
		o.FramesPerBeat = DefaultFramesPerBeat
	}
	if o.FramesPerBeat < 1 || o.FramesPerBeat > MaxFramesPerBeat {
		return errors.New(errors.ErrCodeInvalidInput, "frames per beat must be between 1 and %d, got %d", MaxFramesPerBeat, o.FramesPerBeat)
	}
	if o.BPM == 0 {
		o.BPM = DefaultBPM
	}
	if o.BPM < 0 || math.IsNaN(o.BPM) || math.IsInf(o.BPM, 0) {
		return errors.New(errors.ErrCodeInvalidInput, "bpm must be positive, got %v", o.BPM)
	}
	if err := errors.ValidateDimensions(o.Width, o.Height); err != nil {
		return err
	}
	if o.Quality == 0 {
		o.Quality = encode.DefaultQuality
	}
	if o.WebPQuality == 0 {
		o.WebPQuality = transcode.DefaultQuality
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Filename != "" {
		if err := errors.ValidateFilename(o.Filename); err != nil {
			return err
		}
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// TotalFrames is the number of frames captured.
func (o *Options) TotalFrames() int {
	return o.TotalBeats * o.FramesPerBeat
}

// FrameDelay is how long each frame is shown.
func (o *Options) FrameDelay() time.Duration {
	return time.Duration(float64(time.Minute) / (o.BPM * float64(o.FramesPerBeat)))
}

// FPS is the playback rate of the resulting animation.
func (o *Options) FPS() float64 {
	return o.BPM * float64(o.FramesPerBeat) / 60
}

// EncoderOptions returns the options for the frame encoder.
func (o *Options) EncoderOptions() encode.Options {
	return encode.Options{FPS: o.FPS(), Quality: o.Quality, Repeat: o.Repeat}
}

// TranscodeOptions returns the options for the transcoder. The GIF repeat
// count is converted to a WebP play count, where 0 still means forever.
func (o *Options) TranscodeOptions() transcode.Options {
	loop := 0
	switch {
	case o.Repeat < 0:
		loop = 1
	case o.Repeat > 0:
		loop = o.Repeat + 1
	}
	return transcode.Options{
		Format:   o.Format,
		Quality:  o.WebPQuality,
		Lossless: o.Lossless,
		Loop:     loop,
	}
}
