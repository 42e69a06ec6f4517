package export

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/errors"
)

func TestExportEndToEnd(t *testing.T) {
	h := newHarness(t, canvas.Config{})

	res, err := h.pipeline.StartExport(context.Background(), h.options(2, 4))
	if err != nil {
		t.Fatalf("StartExport error: %v", err)
	}
	if res.Cancelled {
		t.Fatal("result should not be cancelled")
	}

	want := []float64{0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 1.75}
	got := h.source.Beats()
	if len(got) != len(want) {
		t.Fatalf("rendered %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d beat = %v, want %v", i, got[i], want[i])
		}
	}

	frames, finalizes, _ := h.encoder.counts()
	if frames != 8 {
		t.Errorf("AddFrame calls = %d, want 8", frames)
	}
	if finalizes != 1 {
		t.Errorf("Finalize calls = %d, want 1", finalizes)
	}
	if n := h.progress.count(StageComplete); n != 1 {
		t.Errorf("complete events = %d, want 1", n)
	}
	if n := h.progress.count(StageError); n != 0 {
		t.Errorf("error events = %d, want 0", n)
	}
	if h.transcoder.calls != 0 {
		t.Errorf("transcoder called %d times for native format", h.transcoder.calls)
	}

	// Capturing progress is 1..8 in order.
	current := 0
	for _, ev := range h.progress.events {
		if ev.Stage != StageCapturing {
			continue
		}
		if ev.Current != current+1 || ev.Total != 8 {
			t.Errorf("capturing event = %+v, want current %d of 8", ev, current+1)
		}
		current = ev.Current
	}

	if string(h.delivery.saved["out.gif"]) != "GIF89a" {
		t.Errorf("delivered = %q, want encoder output", h.delivery.saved["out.gif"])
	}
	if res.Frames != 8 || string(res.Blob) != "GIF89a" {
		t.Errorf("result = %d frames %q, want 8 frames GIF89a", res.Frames, res.Blob)
	}
	if res.JobID == "" {
		t.Error("result has no job id")
	}

	// 60 bpm at 4 frames per beat
	for i, d := range h.encoder.delays {
		if d != 250*time.Millisecond {
			t.Errorf("delay[%d] = %v, want 250ms", i, d)
		}
	}

	if h.pipeline.IsExporting() || h.pipeline.State() != StageIdle {
		t.Errorf("after export: exporting=%v state=%s, want idle", h.pipeline.IsExporting(), h.pipeline.State())
	}
	if st := h.pool.Stats(); st.InUse != 0 {
		t.Errorf("pool InUse = %d, want 0", st.InUse)
	}
}

func TestExportStageOrder(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	opts := h.options(1, 2)
	opts.Format = "webp"
	opts.Filename = "out.webp"

	if _, err := h.pipeline.StartExport(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	want := []Stage{StageCapturing, StageEncoding, StageTranscoding, StageComplete}
	got := h.progress.stages()
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stages = %v, want %v", got, want)
			break
		}
	}
	if h.transcoder.calls != 1 {
		t.Errorf("transcoder calls = %d, want 1", h.transcoder.calls)
	}
	if string(h.delivery.saved["out.webp"]) != "RIFFGIF89a" {
		t.Errorf("delivered = %q, want transcoded output", h.delivery.saved["out.webp"])
	}
}

func TestSingleInFlightExport(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	reached := make(chan struct{})
	release := make(chan struct{})
	h.source.onFrame = func(i int) error {
		if i == 2 {
			close(reached)
			<-release
		}
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.StartExport(context.Background(), h.options(2, 4))
		done <- err
	}()
	<-reached

	before, ok := h.pipeline.CurrentJob()
	if !ok {
		t.Fatal("CurrentJob reported no job while exporting")
	}
	if !h.pipeline.IsExporting() {
		t.Error("IsExporting = false during export")
	}

	_, err := h.pipeline.StartExport(context.Background(), h.options(1, 1))
	if !errors.Is(err, errors.ErrCodeConcurrentExport) {
		t.Fatalf("second StartExport error = %v, want %s", err, errors.ErrCodeConcurrentExport)
	}

	after, _ := h.pipeline.CurrentJob()
	if after.ID != before.ID || after.FrameIndex != before.FrameIndex {
		t.Errorf("job changed by rejected start: before %+v after %+v", before, after)
	}
	if after.TotalFrames != 8 {
		t.Errorf("TotalFrames = %d, want 8", after.TotalFrames)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first export error: %v", err)
	}
	if n := len(h.source.Beats()); n != 8 {
		t.Errorf("first export rendered %d frames, want 8", n)
	}
}

func TestWithIdlePlayback(t *testing.T) {
	h := newHarness(t, canvas.Config{})

	if err := h.pipeline.WithIdlePlayback(func(pc PlaybackController) { pc.JumpToBeat(1.25) }); err != nil {
		t.Fatalf("WithIdlePlayback while idle: %v", err)
	}
	if h.player.CurrentBeat() != 1.25 {
		t.Errorf("beat = %v, want 1.25", h.player.CurrentBeat())
	}

	reached := make(chan struct{})
	release := make(chan struct{})
	h.source.onFrame = func(i int) error {
		if i == 1 {
			close(reached)
			<-release
		}
		return nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := h.pipeline.StartExport(context.Background(), h.options(2, 2))
		done <- err
	}()
	<-reached

	called := false
	err := h.pipeline.WithIdlePlayback(func(pc PlaybackController) {
		called = true
		pc.JumpToBeat(0.75)
	})
	if !errors.Is(err, errors.ErrCodeConcurrentExport) {
		t.Errorf("WithIdlePlayback during export = %v, want %s", err, errors.ErrCodeConcurrentExport)
	}
	if called {
		t.Error("playback was changed while an export was capturing")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []float64{0, 0.5, 1, 1.5}
	got := h.source.Beats()
	if len(got) != len(want) {
		t.Fatalf("rendered beats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rendered beats = %v, want %v", got, want)
			break
		}
	}

	// A seek holding the playback lock delays admission until it returns.
	entered := make(chan struct{})
	unblock := make(chan struct{})
	seekDone := make(chan error, 1)
	go func() {
		seekDone <- h.pipeline.WithIdlePlayback(func(PlaybackController) {
			close(entered)
			<-unblock
		})
	}()
	<-entered
	h.source.onFrame = nil
	started := make(chan error, 1)
	go func() {
		_, err := h.pipeline.StartExport(context.Background(), h.options(1, 1))
		started <- err
	}()
	select {
	case <-started:
		t.Error("export was admitted while playback was being changed")
	case <-time.After(20 * time.Millisecond):
	}
	close(unblock)
	if err := <-seekDone; err != nil {
		t.Error(err)
	}
	if err := <-started; err != nil {
		t.Errorf("export after seek: %v", err)
	}
}

func TestPlaybackRestoration(t *testing.T) {
	tests := []struct {
		name    string
		beat    float64
		playing bool
		setup   func(h *harness)
		wantErr bool
		cancel  bool
	}{
		{
			name: "complete", beat: 2.5, playing: true,
			setup: func(h *harness) {},
		},
		{
			name: "cancelled mid-capture", beat: 1, playing: false,
			setup: func(h *harness) {
				h.source.onFrame = func(i int) error {
					if i == 3 {
						h.pipeline.CancelExport()
					}
					return nil
				}
			},
			cancel: true,
		},
		{
			name: "cancelled while playing", beat: 0.75, playing: true,
			setup: func(h *harness) {
				h.source.onFrame = func(i int) error {
					if i == 1 {
						h.pipeline.CancelExport()
					}
					return nil
				}
			},
			cancel: true,
		},
		{
			name: "encode failure", beat: 3, playing: true,
			setup: func(h *harness) {
				h.encoder.finalizeErr = stderrors.New("lzw overflow")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, canvas.Config{})
			h.player.beat = tt.beat
			h.player.playing = tt.playing
			tt.setup(h)

			res, err := h.pipeline.StartExport(context.Background(), h.options(2, 4))
			if (err != nil) != tt.wantErr {
				t.Fatalf("StartExport error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.cancel && (res == nil || !res.Cancelled) {
				t.Errorf("result = %+v, want cancelled", res)
			}

			if got := h.player.CurrentBeat(); got != tt.beat {
				t.Errorf("beat after export = %v, want %v", got, tt.beat)
			}
			if got := h.player.IsPlaying(); got != tt.playing {
				t.Errorf("playing after export = %v, want %v", got, tt.playing)
			}
			if st := h.pool.Stats(); st.InUse != 0 {
				t.Errorf("pool InUse = %d after export, want 0", st.InUse)
			}
			if h.pipeline.IsExporting() {
				t.Error("pipeline still exporting")
			}
		})
	}
}

func TestCancellationIsSilent(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	h.source.onFrame = func(i int) error {
		if i == 2 {
			h.pipeline.CancelExport()
		}
		return nil
	}

	res, err := h.pipeline.StartExport(context.Background(), h.options(2, 4))
	if err != nil {
		t.Fatalf("cancelled export returned error: %v", err)
	}
	if !res.Cancelled || res.Blob != nil {
		t.Errorf("result = %+v, want cancelled without blob", res)
	}
	if n := h.progress.count(StageError); n != 0 {
		t.Errorf("error events = %d, want 0", n)
	}
	if n := h.progress.count(StageComplete); n != 0 {
		t.Errorf("complete events = %d, want 0", n)
	}
	if len(h.delivery.saved) != 0 {
		t.Error("cancelled export was delivered")
	}

	frames, finalizes, aborts := h.encoder.counts()
	if frames != 2 {
		t.Errorf("frames added = %d, want 2", frames)
	}
	if finalizes != 0 {
		t.Errorf("Finalize calls = %d, want 0", finalizes)
	}
	if aborts == 0 {
		t.Error("encoder was not aborted")
	}

	// The pipeline is reusable.
	h.source.onFrame = nil
	if res, err := h.pipeline.StartExport(context.Background(), h.options(1, 2)); err != nil || res.Cancelled {
		t.Errorf("follow-up export = (%+v, %v), want success", res, err)
	}
}

func TestContextCancellation(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	h.source.onFrame = func(i int) error {
		if i == 1 {
			cancel()
		}
		return nil
	}

	res, err := h.pipeline.StartExport(ctx, h.options(2, 4))
	if err != nil {
		t.Fatalf("StartExport error = %v, want nil", err)
	}
	if !res.Cancelled {
		t.Error("context cancellation should produce a cancelled result")
	}
	if n := h.progress.count(StageError); n != 0 {
		t.Errorf("error events = %d, want 0", n)
	}
}

func TestCancelExportWhenIdle(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	h.pipeline.CancelExport()
	if _, ok := h.pipeline.CurrentJob(); ok {
		t.Error("CurrentJob reported a job while idle")
	}
	// A stale cancel does not leak into the next job.
	res, err := h.pipeline.StartExport(context.Background(), h.options(1, 1))
	if err != nil || res.Cancelled {
		t.Errorf("export after idle cancel = (%+v, %v), want success", res, err)
	}
}

func TestExportErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness, o *Options)
		pool    canvas.Config
		code    errors.Code
		aborted bool
	}{
		{
			name:    "encoder create",
			setup:   func(h *harness, o *Options) { h.encoder.createErr = stderrors.New("no memory") },
			code:    errors.ErrCodeEncodingFailed,
			aborted: false,
		},
		{
			name:  "finalize",
			setup: func(h *harness, o *Options) { h.encoder.finalizeErr = stderrors.New("lzw overflow") },
			code:  errors.ErrCodeEncodingFailed,
		},
		{
			name: "transcode",
			setup: func(h *harness, o *Options) {
				o.Format = "webp"
				h.transcoder.err = stderrors.New("libwebp missing")
			},
			code: errors.ErrCodeTranscodingFailed,
		},
		{
			name: "render",
			setup: func(h *harness, o *Options) {
				h.source.onFrame = func(i int) error { return stderrors.New("gpu lost") }
			},
			code:    errors.ErrCodeCaptureFailed,
			aborted: true,
		},
		{
			name: "delivery",
			setup: func(h *harness, o *Options) {
				h.delivery.err = stderrors.New("disk full")
			},
			code: errors.ErrCodeDeliveryFailed,
		},
		{
			name:    "memory budget",
			setup:   func(h *harness, o *Options) {},
			pool:    canvas.Config{MaxTotalMemory: 16},
			code:    errors.ErrCodeMemoryBudgetExceeded,
			aborted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.pool)
			h.player.beat = 1.5
			opts := h.options(2, 2)
			tt.setup(h, &opts)

			_, err := h.pipeline.StartExport(context.Background(), opts)
			if !errors.Is(err, tt.code) {
				t.Fatalf("StartExport error = %v, want %s", err, tt.code)
			}
			if n := h.progress.count(StageError); n != 1 {
				t.Errorf("error events = %d, want 1", n)
			}
			if n := h.progress.count(StageComplete); n != 0 {
				t.Errorf("complete events = %d, want 0 for a failed job", n)
			}
			if n := len(h.progress.events); n == 0 || h.progress.events[n-1].Stage != StageError {
				t.Errorf("last event is not the error: %v", h.progress.events)
			}
			var msg string
			for _, ev := range h.progress.events {
				if ev.Stage == StageError {
					msg = ev.Error
				}
			}
			if msg == "" {
				t.Error("error event has no message")
			}
			if h.player.CurrentBeat() != 1.5 {
				t.Errorf("beat = %v, want 1.5", h.player.CurrentBeat())
			}
			if _, _, aborts := h.encoder.counts(); tt.aborted && aborts == 0 {
				t.Error("encoder should be aborted on capture failure")
			}
			if st := h.pool.Stats(); st.InUse != 0 {
				t.Errorf("pool InUse = %d, want 0", st.InUse)
			}
			if h.pipeline.State() != StageIdle {
				t.Errorf("State = %s, want idle", h.pipeline.State())
			}
		})
	}
}

func TestExportWithoutTranscoder(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	p, err := NewPipeline(Config{
		Pool:     h.pool,
		Source:   h.source,
		Playback: h.player,
		Encoder:  h.encoder,
		Clock:    Immediate{},
	})
	if err != nil {
		t.Fatal(err)
	}
	opts := h.options(1, 1)
	opts.Format = "webp"
	if _, err := p.StartExport(context.Background(), opts); !errors.Is(err, errors.ErrCodeUnsupported) {
		t.Errorf("StartExport error = %v, want %s", err, errors.ErrCodeUnsupported)
	}
}

func TestExportOverlay(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	overlay := &countingOverlay{}
	p, err := NewPipeline(Config{
		Pool:     h.pool,
		Source:   h.source,
		Playback: h.player,
		Encoder:  h.encoder,
		Overlay:  overlay,
		Clock:    Immediate{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.StartExport(context.Background(), h.options(3, 2)); err != nil {
		t.Fatal(err)
	}
	if overlay.calls != 6 {
		t.Errorf("overlay calls = %d, want 6", overlay.calls)
	}
}

func TestExportReusesSurfaces(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	if _, err := h.pipeline.StartExport(context.Background(), h.options(4, 4)); err != nil {
		t.Fatal(err)
	}
	st := h.pool.Stats()
	if st.TotalCanvases != 1 {
		t.Errorf("TotalCanvases = %d after 16 frames, want 1 reused surface", st.TotalCanvases)
	}
	for i, sz := range h.source.sizes {
		if sz.X != 16 || sz.Y != 8 {
			t.Errorf("frame %d surface = %v, want 16x8", i, sz)
		}
	}
}

func TestNewPipelineValidation(t *testing.T) {
	pool := canvas.NewPool(canvas.Config{})
	full := Config{
		Pool:     pool,
		Source:   &recordingSource{},
		Playback: &fakePlayer{},
		Encoder:  &fakeEncoder{},
	}
	if _, err := NewPipeline(full); err != nil {
		t.Fatalf("NewPipeline(full) error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no pool", func(c *Config) { c.Pool = nil }},
		{"no source", func(c *Config) { c.Source = nil }},
		{"no playback", func(c *Config) { c.Playback = nil }},
		{"no encoder", func(c *Config) { c.Encoder = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if _, err := NewPipeline(cfg); !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("NewPipeline error = %v, want %s", err, errors.ErrCodeInvalidConfig)
			}
		})
	}
}

func TestOnStartReportsAdmittedJob(t *testing.T) {
	h := newHarness(t, canvas.Config{})
	var started []JobStatus
	opts := h.options(1, 2)
	opts.OnStart = func(st JobStatus) {
		started = append(started, st)
		if len(h.source.Beats()) != 0 {
			t.Error("OnStart should run before the first capture")
		}
	}

	res, err := h.pipeline.StartExport(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(started) != 1 {
		t.Fatalf("OnStart called %d times, want 1", len(started))
	}
	if started[0].ID != res.JobID || started[0].Stage != StageCapturing || started[0].TotalFrames != 2 {
		t.Errorf("OnStart status = %+v, result job %s", started[0], res.JobID)
	}

	// A rejected start never reaches OnStart.
	bad := h.options(0, 1)
	bad.OnStart = func(JobStatus) { t.Error("OnStart called for an invalid job") }
	if _, err := h.pipeline.StartExport(context.Background(), bad); err == nil {
		t.Error("StartExport with zero beats should fail")
	}
}
