package export

import (
	"math"
	"testing"
	"time"

	"github.com/matzehuels/seqexport/pkg/errors"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"gif", false},
		{"webp", false},
		{"GIF", true},
		{"png", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{TotalBeats: 3, Width: 10, Height: 10}
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if o.Format != DefaultFormat {
		t.Errorf("Format = %q, want %q", o.Format, DefaultFormat)
	}
	if o.FramesPerBeat != DefaultFramesPerBeat {
		t.Errorf("FramesPerBeat = %d, want %d", o.FramesPerBeat, DefaultFramesPerBeat)
	}
	if o.BPM != DefaultBPM {
		t.Errorf("BPM = %v, want %v", o.BPM, DefaultBPM)
	}
	if o.Logger == nil {
		t.Error("Logger should default to a discard logger")
	}
	if o.TotalFrames() != 12 {
		t.Errorf("TotalFrames = %d, want 12", o.TotalFrames())
	}

	// Idempotent
	o.FramesPerBeat = 0
	if err := o.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if o.FramesPerBeat != 0 {
		t.Error("second ValidateAndSetDefaults call should be a no-op")
	}
}

func TestOptionsValidation(t *testing.T) {
	base := func() Options { return Options{TotalBeats: 2, Width: 10, Height: 10} }
	tests := []struct {
		name   string
		mutate func(o *Options)
		code   errors.Code
	}{
		{"bad format", func(o *Options) { o.Format = "mp4" }, errors.ErrCodeInvalidFormat},
		{"no beats", func(o *Options) { o.TotalBeats = 0 }, errors.ErrCodeInvalidInput},
		{"too many beats", func(o *Options) { o.TotalBeats = 1001 }, errors.ErrCodeInvalidInput},
		{"negative fpb", func(o *Options) { o.FramesPerBeat = -1 }, errors.ErrCodeInvalidInput},
		{"huge fpb", func(o *Options) { o.FramesPerBeat = MaxFramesPerBeat + 1 }, errors.ErrCodeInvalidInput},
		{"negative bpm", func(o *Options) { o.BPM = -60 }, errors.ErrCodeInvalidInput},
		{"nan bpm", func(o *Options) { o.BPM = math.NaN() }, errors.ErrCodeInvalidInput},
		{"zero width", func(o *Options) { o.Width = 0 }, errors.ErrCodeInvalidInput},
		{"bad filename", func(o *Options) { o.Filename = "../x.gif" }, errors.ErrCodeInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base()
			tt.mutate(&o)
			if err := o.ValidateAndSetDefaults(); !errors.Is(err, tt.code) {
				t.Errorf("ValidateAndSetDefaults error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestFrameTiming(t *testing.T) {
	tests := []struct {
		bpm       float64
		fpb       int
		wantDelay time.Duration
		wantFPS   float64
	}{
		{60, 4, 250 * time.Millisecond, 4},
		{120, 4, 125 * time.Millisecond, 8},
		{90, 10, time.Minute / 900, 15},
	}
	for _, tt := range tests {
		o := Options{BPM: tt.bpm, FramesPerBeat: tt.fpb}
		if got := o.FrameDelay(); got != tt.wantDelay {
			t.Errorf("FrameDelay(%v bpm, %d fpb) = %v, want %v", tt.bpm, tt.fpb, got, tt.wantDelay)
		}
		if got := o.FPS(); got != tt.wantFPS {
			t.Errorf("FPS(%v bpm, %d fpb) = %v, want %v", tt.bpm, tt.fpb, got, tt.wantFPS)
		}
	}
}

func TestTranscodeOptionsLoop(t *testing.T) {
	tests := []struct {
		repeat int
		want   int
	}{
		{0, 0},
		{-1, 1},
		{2, 3},
	}
	for _, tt := range tests {
		o := Options{Format: "webp", Repeat: tt.repeat, WebPQuality: 70}
		got := o.TranscodeOptions()
		if got.Loop != tt.want {
			t.Errorf("Repeat %d: Loop = %d, want %d", tt.repeat, got.Loop, tt.want)
		}
		if got.Quality != 70 || got.Format != "webp" {
			t.Errorf("TranscodeOptions = %+v", got)
		}
	}
}

func TestStagePredicates(t *testing.T) {
	for _, s := range []Stage{StageCapturing, StageEncoding, StageTranscoding} {
		if !s.Active() || s.Terminal() {
			t.Errorf("%s: Active=%v Terminal=%v", s, s.Active(), s.Terminal())
		}
	}
	for _, s := range []Stage{StageComplete, StageCancelled, StageError} {
		if s.Active() || !s.Terminal() {
			t.Errorf("%s: Active=%v Terminal=%v", s, s.Active(), s.Terminal())
		}
	}
	if StageIdle.Active() || StageIdle.Terminal() {
		t.Error("idle is neither active nor terminal")
	}
}
