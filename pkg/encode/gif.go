package encode

import (
	"bytes"
	"context"
	"image"
	"image/color/palette"
	"image/gif"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/seqexport/pkg/errors"
)

// GIF encodes animations with the Plan 9 palette.
type GIF struct {
	// Workers bounds parallel quantisation. Zero uses GOMAXPROCS.
	Workers int
}

// NewGIF returns a GIF encoder with default settings.
func NewGIF() *GIF {
	return &GIF{}
}

// Format implements Encoder.
func (g *GIF) Format() string { return FormatGIF }

// Create implements Encoder.
func (g *GIF) Create(width, height int, opts Options) (Handle, error) {
	if err := errors.ValidateDimensions(width, height); err != nil {
		return nil, err
	}
	opts.setDefaults()

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &gifHandle{
		rect:    image.Rect(0, 0, width, height),
		opts:    opts,
		workers: workers,
	}, nil
}

type gifHandle struct {
	rect    image.Rectangle
	opts    Options
	workers int

	mu        sync.Mutex
	frames    []*image.RGBA
	delays    []int
	finalized bool
	aborted   atomic.Bool
}

func (h *gifHandle) AddFrame(frame image.Image, delay time.Duration) error {
	if frame == nil {
		return errors.New(errors.ErrCodeInvalidInput, "frame is nil")
	}
	if h.aborted.Load() {
		return ErrAborted
	}

	snap := image.NewRGBA(h.rect)
	if frame.Bounds().Size() == h.rect.Size() {
		draw.Draw(snap, h.rect, frame, frame.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(snap, h.rect, frame, frame.Bounds(), draw.Src, nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.aborted.Load() {
		return ErrAborted
	}
	if h.finalized {
		return errors.New(errors.ErrCodeEncodingFailed, "frame added after finalize")
	}
	h.frames = append(h.frames, snap)
	h.delays = append(h.delays, centiseconds(delay))
	return nil
}

func (h *gifHandle) Finalize(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	if h.aborted.Load() {
		h.mu.Unlock()
		return nil, ErrAborted
	}
	if h.finalized {
		h.mu.Unlock()
		return nil, errors.New(errors.ErrCodeEncodingFailed, "finalize called twice")
	}
	h.finalized = true
	frames, delays := h.frames, h.delays
	h.frames, h.delays = nil, nil
	h.mu.Unlock()

	if len(frames) == 0 {
		return nil, errors.New(errors.ErrCodeEncodingFailed, "no frames to encode")
	}

	paletted := make([]*image.Paletted, len(frames))
	dither := h.opts.Quality <= DitherQualityThreshold

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, frame := range frames {
		g.Go(func() error {
			if h.aborted.Load() {
				return ErrAborted
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			paletted[i] = quantize(frame, dither)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if h.aborted.Load() {
			return nil, ErrAborted
		}
		return nil, errors.Wrap(errors.ErrCodeEncodingFailed, err, "quantize frames")
	}

	anim := &gif.GIF{
		Image:     paletted,
		Delay:     delays,
		LoopCount: h.opts.Repeat,
		Config: image.Config{
			ColorModel: paletted[0].Palette,
			Width:      h.rect.Dx(),
			Height:     h.rect.Dy(),
		},
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncodingFailed, err, "write gif")
	}
	if h.aborted.Load() {
		return nil, ErrAborted
	}
	return buf.Bytes(), nil
}

func (h *gifHandle) Abort() {
	h.aborted.Store(true)
	h.mu.Lock()
	h.frames, h.delays = nil, nil
	h.mu.Unlock()
}

func quantize(frame *image.RGBA, dither bool) *image.Paletted {
	dst := image.NewPaletted(frame.Rect, palette.Plan9)
	if dither {
		draw.FloydSteinberg.Draw(dst, frame.Rect, frame, frame.Rect.Min)
	} else {
		draw.Draw(dst, frame.Rect, frame, frame.Rect.Min, draw.Src)
	}
	return dst
}

// centiseconds converts a frame delay to GIF units, never below one tick.
func centiseconds(d time.Duration) int {
	cs := int(math.Round(float64(d) / float64(10*time.Millisecond)))
	if cs < 1 {
		cs = 1
	}
	return cs
}
