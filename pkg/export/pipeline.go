package export

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/encode"
	"github.com/matzehuels/seqexport/pkg/errors"
	"github.com/matzehuels/seqexport/pkg/observability"
	"github.com/matzehuels/seqexport/pkg/transcode"
)

// errCancelled is the internal signal raised by every tripped cancel check.
var errCancelled = errors.New(errors.ErrCodeExportCancelled, "export cancelled")

// Config wires a Pipeline to its collaborators.
type Config struct {
	Pool     *canvas.Pool
	Source   FrameSource
	Playback PlaybackController
	Encoder  encode.Encoder

	// Transcoder is required only for formats the encoder does not produce.
	Transcoder transcode.Transcoder

	// Delivery receives the final blob when Options.Filename is set.
	Delivery Delivery

	// Overlay is drawn over every frame when set.
	Overlay Overlay

	// Clock defaults to a 60 Hz Ticker.
	Clock FrameClock

	Logger *log.Logger
}

// Pipeline runs one export at a time. It is safe for concurrent use: status
// queries and CancelExport may be called from any goroutine while
// StartExport is running.
type Pipeline struct {
	cfg Config

	mu    sync.Mutex
	stage Stage
	job   *job
}

type job struct {
	id        string
	format    string
	startedAt time.Time
	total     int

	frameIndex atomic.Int64
	cancel     atomic.Bool

	// handle is guarded by Pipeline.mu.
	handle encode.Handle
}

// NewPipeline validates cfg and returns an idle pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Pool == nil:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pipeline needs a canvas pool")
	case cfg.Source == nil:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pipeline needs a frame source")
	case cfg.Playback == nil:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pipeline needs a playback controller")
	case cfg.Encoder == nil:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pipeline needs an encoder")
	}
	if cfg.Clock == nil {
		cfg.Clock = NewTicker(DefaultFrameRate)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Pipeline{cfg: cfg, stage: StageIdle}, nil
}

// IsExporting reports whether a job is running.
func (p *Pipeline) IsExporting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job != nil
}

// State returns the current stage. It is StageIdle between jobs.
func (p *Pipeline) State() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// CurrentJob returns a snapshot of the running job.
func (p *Pipeline) CurrentJob() (JobStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == nil {
		return JobStatus{}, false
	}
	return JobStatus{
		ID:          p.job.id,
		Stage:       p.stage,
		Format:      p.job.format,
		FrameIndex:  int(p.job.frameIndex.Load()),
		TotalFrames: p.job.total,
		StartedAt:   p.job.startedAt,
		Cancelling:  p.job.cancel.Load(),
	}, true
}

// WithIdlePlayback runs fn against the playback controller while no export
// is running. No export can be admitted until fn returns. It fails with
// CONCURRENT_EXPORT_REJECTED when a job is in progress and fn is not called.
func (p *Pipeline) WithIdlePlayback(fn func(PlaybackController)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job != nil {
		return errors.New(errors.ErrCodeConcurrentExport, "playback is locked while export %s runs", p.job.id)
	}
	fn(p.cfg.Playback)
	return nil
}

// CancelExport requests cooperative cancellation of the running job and
// aborts its encoder. It does not wait for the job to stop and is a no-op
// when nothing is running.
func (p *Pipeline) CancelExport() {
	p.mu.Lock()
	j := p.job
	var h encode.Handle
	if j != nil {
		j.cancel.Store(true)
		h = j.handle
	}
	p.mu.Unlock()

	if j == nil {
		return
	}
	if h != nil {
		h.Abort()
	}
	p.cfg.Logger.Info("export cancel requested", "job", j.id)
}

// StartExport runs a job to completion and returns its result.
//
// It fails immediately with CONCURRENT_EXPORT_REJECTED when another job is
// running. A cancelled job returns a Result with Cancelled set and a nil
// error. Any other failure is reported as a StageError progress event and
// returned.
func (p *Pipeline) StartExport(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	j, err := p.begin(opts)
	if err != nil {
		return nil, err
	}
	defer p.finish()

	snap := snapshotPlayback(p.cfg.Playback)
	defer snap.restore(p.cfg.Playback)

	hooks := observability.Export()
	hooks.OnExportStart(ctx, j.id, j.total)
	logger.Info("export started",
		"job", j.id,
		"format", opts.Format,
		"frames", j.total,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	if opts.OnStart != nil {
		if st, ok := p.CurrentJob(); ok {
			opts.OnStart(st)
		}
	}

	result := &Result{
		JobID:    j.id,
		Format:   opts.Format,
		Filename: opts.Filename,
		Width:    opts.Width,
		Height:   opts.Height,
	}
	err = p.run(ctx, j, &opts, snap, result)
	result.Frames = int(j.frameIndex.Load())
	result.Stats.TotalTime = time.Since(j.startedAt)

	switch {
	case err == nil:
		p.setStage(StageComplete)
		hooks.OnExportComplete(ctx, j.id, result.Stats.TotalTime, false, nil)
		logger.Info("export complete",
			"job", j.id,
			"bytes", len(result.Blob),
			"duration", result.Stats.TotalTime)
		return result, nil

	case errors.IsCancelled(err):
		p.setStage(StageCancelled)
		result.Cancelled = true
		result.Blob = nil
		hooks.OnExportComplete(ctx, j.id, result.Stats.TotalTime, true, nil)
		logger.Info("export cancelled", "job", j.id, "frames", result.Frames)
		return result, nil

	default:
		p.setStage(StageError)
		emit(opts.OnProgress, Progress{Stage: StageError, Error: errors.UserMessage(err)})
		hooks.OnExportComplete(ctx, j.id, result.Stats.TotalTime, false, err)
		logger.Error("export failed", "job", j.id, "error", err)
		return nil, err
	}
}

func (p *Pipeline) run(ctx context.Context, j *job, opts *Options, snap playbackSnapshot, result *Result) error {
	hooks := observability.Export()
	player := p.cfg.Playback

	if snap.wasPlaying {
		player.TogglePlayback()
	}
	player.JumpToBeat(0)
	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		return errCancelled
	}

	h, err := p.cfg.Encoder.Create(opts.Width, opts.Height, opts.EncoderOptions())
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncodingFailed, err, "create encoder")
	}
	if !p.attachHandle(j, h) {
		h.Abort()
		return errCancelled
	}
	finalized := false
	defer func() {
		if !finalized {
			h.Abort()
		}
	}()

	// Capturing
	captureStart := time.Now()
	delay := opts.FrameDelay()
	for i := 0; i < j.total; i++ {
		if p.cancelled(ctx, j) {
			return errCancelled
		}
		beat := float64(i) / float64(opts.FramesPerBeat)
		player.JumpToBeat(beat)
		for k := 0; k < DefaultRenderFramesPerCapture; k++ {
			if err := p.cfg.Clock.WaitFrame(ctx); err != nil {
				if ctx.Err() != nil {
					return errCancelled
				}
				return errors.Wrap(errors.ErrCodeCaptureFailed, err, "wait for frame boundary")
			}
		}

		frameStart := time.Now()
		if err := p.captureFrame(j, h, opts, beat, delay); err != nil {
			return err
		}
		j.frameIndex.Store(int64(i + 1))
		hooks.OnFrameCaptured(ctx, j.id, i, time.Since(frameStart))
		emit(opts.OnProgress, Progress{Stage: StageCapturing, Current: i + 1, Total: j.total})
	}
	result.Stats.CaptureTime = time.Since(captureStart)

	// Encoding
	if p.cancelled(ctx, j) {
		return errCancelled
	}
	p.enterStage(ctx, j, opts, StageEncoding)
	encodeStart := time.Now()
	blob, err := h.Finalize(ctx)
	finalized = true
	if err != nil {
		if p.cancelled(ctx, j) || errors.IsCancelled(err) {
			return errCancelled
		}
		return errors.Wrap(errors.ErrCodeEncodingFailed, err, "finalize %s", p.cfg.Encoder.Format())
	}
	result.Stats.EncodeTime = time.Since(encodeStart)
	opts.Logger.Debug("encoded", "job", j.id, "bytes", len(blob), "duration", result.Stats.EncodeTime)

	// Transcoding
	if opts.Format != p.cfg.Encoder.Format() {
		if p.cfg.Transcoder == nil {
			return errors.New(errors.ErrCodeUnsupported, "no transcoder configured for %s output", opts.Format)
		}
		if p.cancelled(ctx, j) {
			return errCancelled
		}
		p.enterStage(ctx, j, opts, StageTranscoding)
		transcodeStart := time.Now()
		blob, err = p.cfg.Transcoder.Convert(ctx, blob, opts.TranscodeOptions())
		if err != nil {
			if p.cancelled(ctx, j) || errors.IsCancelled(err) {
				return errCancelled
			}
			if errors.GetCode(err) == "" {
				err = errors.Wrap(errors.ErrCodeTranscodingFailed, err, "transcode to %s", opts.Format)
			}
			return err
		}
		result.Stats.TranscodeTime = time.Since(transcodeStart)
	}
	if p.cancelled(ctx, j) {
		return errCancelled
	}

	// Complete. The blob is saved first so that complete is always the
	// last event of a job.
	if opts.Filename != "" && p.cfg.Delivery != nil {
		if err := p.cfg.Delivery.Save(ctx, blob, opts.Filename); err != nil {
			if errors.GetCode(err) == "" {
				err = errors.Wrap(errors.ErrCodeDeliveryFailed, err, "save %s", opts.Filename)
			}
			return err
		}
	}
	result.Blob = blob
	p.setStage(StageComplete)
	hooks.OnStage(ctx, j.id, string(StageComplete))
	emit(opts.OnProgress, Progress{Stage: StageComplete})
	return nil
}

// captureFrame draws one frame onto a pooled surface and hands it to the
// encoder. The surface is back in the pool when it returns.
func (p *Pipeline) captureFrame(j *job, h encode.Handle, opts *Options, beat float64, delay time.Duration) error {
	surface, err := p.cfg.Pool.Acquire(opts.Width, opts.Height)
	if err != nil {
		return err
	}
	defer p.cfg.Pool.Release(surface)

	if err := p.cfg.Source.RenderFrame(surface, beat); err != nil {
		return errors.Wrap(errors.ErrCodeCaptureFailed, err, "render beat %.3f", beat)
	}
	if p.cfg.Overlay != nil {
		if err := p.cfg.Overlay.DrawOverlay(surface, beat); err != nil {
			return errors.Wrap(errors.ErrCodeCaptureFailed, err, "draw overlay at beat %.3f", beat)
		}
	}
	if err := h.AddFrame(surface.Image(), delay); err != nil {
		if j.cancel.Load() || errors.IsCancelled(err) {
			return errCancelled
		}
		return errors.Wrap(errors.ErrCodeEncodingFailed, err, "add frame at beat %.3f", beat)
	}
	return nil
}

func (p *Pipeline) begin(opts Options) (*job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job != nil {
		return nil, errors.New(errors.ErrCodeConcurrentExport, "export %s is already running", p.job.id)
	}
	p.job = &job{
		id:        uuid.NewString(),
		format:    opts.Format,
		startedAt: time.Now(),
		total:     opts.TotalFrames(),
	}
	p.stage = StageCapturing
	return p.job, nil
}

// finish clears the job so a new export may start.
func (p *Pipeline) finish() {
	p.mu.Lock()
	p.job = nil
	p.stage = StageIdle
	p.mu.Unlock()
}

// attachHandle publishes the encoder handle for CancelExport. It reports
// false when cancellation was requested before the handle existed.
func (p *Pipeline) attachHandle(j *job, h encode.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	j.handle = h
	return !j.cancel.Load()
}

func (p *Pipeline) cancelled(ctx context.Context, j *job) bool {
	return j.cancel.Load() || ctx.Err() != nil
}

func (p *Pipeline) setStage(s Stage) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

func (p *Pipeline) enterStage(ctx context.Context, j *job, opts *Options, s Stage) {
	p.setStage(s)
	observability.Export().OnStage(ctx, j.id, string(s))
	emit(opts.OnProgress, Progress{Stage: s})
}

func emit(fn ProgressFunc, ev Progress) {
	if fn != nil {
		fn(ev)
	}
}

type playbackSnapshot struct {
	beat       float64
	wasPlaying bool
}

func snapshotPlayback(c PlaybackController) playbackSnapshot {
	return playbackSnapshot{beat: c.CurrentBeat(), wasPlaying: c.IsPlaying()}
}

// restore puts the controller back at the snapshot beat and play state.
func (s playbackSnapshot) restore(c PlaybackController) {
	c.JumpToBeat(s.beat)
	if c.IsPlaying() != s.wasPlaying {
		c.TogglePlayback()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
