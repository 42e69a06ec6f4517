package export

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/encode"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

type recordingSource struct {
	mu      sync.Mutex
	beats   []float64
	sizes   []image.Point
	onFrame func(i int) error
}

func (s *recordingSource) RenderFrame(surface *canvas.Surface, beat float64) error {
	s.mu.Lock()
	i := len(s.beats)
	s.beats = append(s.beats, beat)
	s.sizes = append(s.sizes, image.Pt(surface.Width(), surface.Height()))
	fn := s.onFrame
	s.mu.Unlock()

	surface.Fill(color.RGBA{R: uint8(i), A: 255})
	if fn != nil {
		return fn(i)
	}
	return nil
}

func (s *recordingSource) Beats() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.beats...)
}

type fakePlayer struct {
	mu      sync.Mutex
	beat    float64
	playing bool
	jumps   []float64
	toggles int
}

func (p *fakePlayer) JumpToBeat(beat float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beat = beat
	p.jumps = append(p.jumps, beat)
}

func (p *fakePlayer) TogglePlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = !p.playing
	p.toggles++
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) CurrentBeat() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.beat
}

type fakeEncoder struct {
	mu          sync.Mutex
	frames      int
	delays      []time.Duration
	finalizes   int
	aborts      int
	finalizeErr error
	createErr   error
}

func (e *fakeEncoder) Format() string { return encode.FormatGIF }

func (e *fakeEncoder) Create(width, height int, opts encode.Options) (encode.Handle, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	return &fakeHandle{enc: e}, nil
}

func (e *fakeEncoder) counts() (frames, finalizes, aborts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames, e.finalizes, e.aborts
}

type fakeHandle struct {
	enc     *fakeEncoder
	aborted bool
}

func (h *fakeHandle) AddFrame(frame image.Image, delay time.Duration) error {
	h.enc.mu.Lock()
	defer h.enc.mu.Unlock()
	if h.aborted {
		return encode.ErrAborted
	}
	h.enc.frames++
	h.enc.delays = append(h.enc.delays, delay)
	return nil
}

func (h *fakeHandle) Finalize(ctx context.Context) ([]byte, error) {
	h.enc.mu.Lock()
	defer h.enc.mu.Unlock()
	h.enc.finalizes++
	if h.aborted {
		return nil, encode.ErrAborted
	}
	if h.enc.finalizeErr != nil {
		return nil, h.enc.finalizeErr
	}
	return []byte("GIF89a"), nil
}

func (h *fakeHandle) Abort() {
	h.enc.mu.Lock()
	defer h.enc.mu.Unlock()
	h.aborted = true
	h.enc.aborts++
}

type fakeTranscoder struct {
	calls int
	opts  transcode.Options
	err   error
}

func (t *fakeTranscoder) Convert(ctx context.Context, blob []byte, opts transcode.Options) ([]byte, error) {
	t.calls++
	t.opts = opts
	if t.err != nil {
		return nil, t.err
	}
	return append([]byte("RIFF"), blob...), nil
}

type fakeDelivery struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (d *fakeDelivery) Save(ctx context.Context, blob []byte, filename string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.saved == nil {
		d.saved = make(map[string][]byte)
	}
	d.saved[filename] = blob
	return nil
}

type countingOverlay struct {
	calls int
}

func (o *countingOverlay) DrawOverlay(surface *canvas.Surface, beat float64) error {
	o.calls++
	return nil
}

type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (l *progressLog) record(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) stages() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Stage
	for _, e := range l.events {
		if len(out) == 0 || out[len(out)-1] != e.Stage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func (l *progressLog) count(s Stage) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Stage == s {
			n++
		}
	}
	return n
}

type harness struct {
	pool       *canvas.Pool
	source     *recordingSource
	player     *fakePlayer
	encoder    *fakeEncoder
	transcoder *fakeTranscoder
	delivery   *fakeDelivery
	progress   *progressLog
	pipeline   *Pipeline
}

func newHarness(t interface {
	Helper()
	Fatal(...any)
}, poolCfg canvas.Config) *harness {
	t.Helper()
	h := &harness{
		pool:       canvas.NewPool(poolCfg),
		source:     &recordingSource{},
		player:     &fakePlayer{},
		encoder:    &fakeEncoder{},
		transcoder: &fakeTranscoder{},
		delivery:   &fakeDelivery{},
		progress:   &progressLog{},
	}
	p, err := NewPipeline(Config{
		Pool:       h.pool,
		Source:     h.source,
		Playback:   h.player,
		Encoder:    h.encoder,
		Transcoder: h.transcoder,
		Delivery:   h.delivery,
		Clock:      Immediate{},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.pipeline = p
	return h
}

func (h *harness) options(beats, fpb int) Options {
	return Options{
		TotalBeats:    beats,
		FramesPerBeat: fpb,
		Width:         16,
		Height:        8,
		SettleDelay:   -1,
		Filename:      "out.gif",
		OnProgress:    h.progress.record,
	}
}
