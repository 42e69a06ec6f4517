package export

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/matzehuels/seqexport/pkg/canvas"
	"github.com/matzehuels/seqexport/pkg/dimension"
	"github.com/matzehuels/seqexport/pkg/errors"
)

func TestRunnerExport(t *testing.T) {
	dl := &fakeDelivery{}
	enc := &fakeEncoder{}
	r := NewRunner(canvas.NewPool(canvas.Config{}), enc, nil, dl, nil)
	r.Clock = Immediate{}
	r.Now = func() time.Time { return time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC) }

	src := &recordingSource{}
	p, err := r.NewPipeline(Binding{Source: src, Playback: &fakePlayer{}})
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Export(context.Background(), p, Request{
		Layout:  dimension.Request{BeatCount: 5, IncludeStartPosition: true, Scale: 1},
		Options: Options{FramesPerBeat: 1, SettleDelay: -1},
		Title:   "Five Beat Flow",
	})
	if err != nil {
		t.Fatal(err)
	}

	if res.Width != 576 || res.Height != 288 {
		t.Errorf("size = %dx%d, want 576x288", res.Width, res.Height)
	}
	if got := len(src.Beats()); got != 5 {
		t.Errorf("frames = %d, want 5 (one per beat)", got)
	}
	for _, sz := range src.sizes {
		if sz != image.Pt(576, 288) {
			t.Fatalf("surface size = %v, want 576x288", sz)
		}
	}

	want := "five-beat-flow-20261015-080000.gif"
	if res.Filename != want {
		t.Errorf("Filename = %q, want %q", res.Filename, want)
	}
	if _, ok := dl.saved[want]; !ok {
		t.Errorf("delivery did not receive %q", want)
	}
}

func TestRunnerExportPlanError(t *testing.T) {
	r := NewRunner(nil, nil, nil, nil, nil)
	p, err := r.NewPipeline(Binding{Source: &recordingSource{}, Playback: &fakePlayer{}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Export(context.Background(), p, Request{
		Layout: dimension.Request{BeatCount: -1, Scale: 1},
	})
	if !errors.Is(err, errors.ErrCodeInvalidDimensionInput) {
		t.Errorf("Export error = %v, want %s", err, errors.ErrCodeInvalidDimensionInput)
	}
}

func TestRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, nil, nil, nil)
	if r.Pool == nil || r.Encoder == nil || r.Logger == nil {
		t.Fatalf("NewRunner left nil collaborators: %+v", r)
	}
	if r.Encoder.Format() != "gif" {
		t.Errorf("default encoder format = %q, want gif", r.Encoder.Format())
	}
}

func TestImmediateClock(t *testing.T) {
	if err := (Immediate{}).WaitFrame(context.Background()); err != nil {
		t.Errorf("WaitFrame error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (Immediate{}).WaitFrame(ctx); err == nil {
		t.Error("WaitFrame with cancelled context should fail")
	}
}

func TestTickerWaitsForBoundary(t *testing.T) {
	tk := NewTicker(100)
	if tk.Interval != 10*time.Millisecond {
		t.Fatalf("Interval = %v, want 10ms", tk.Interval)
	}
	start := time.Now()
	if err := tk.WaitFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitFrame took %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTicker(1).WaitFrame(ctx); err == nil {
		t.Error("WaitFrame with cancelled context should fail")
	}
}
