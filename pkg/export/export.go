// Package export drives a single animation-to-artifact export.
//
// A Pipeline snapshots the playback position, steps through every beat of a
// sequence at a fixed number of frames per beat, asks a FrameSource to draw
// each frame onto a pooled canvas surface, feeds the surfaces to an encoder,
// optionally transcodes the result and hands the final bytes to a Delivery.
//
// # Stages
//
//	Idle -> Capturing -> Encoding -> (Transcoding) -> Complete
//	                \________\____________\_______-> Cancelled | Error
//
// After any terminal stage the pipeline returns to Idle and can run the next
// job. Only one job runs at a time; a second StartExport is rejected with
// CONCURRENT_EXPORT_REJECTED instead of being queued.
//
// # Cancellation
//
// CancelExport sets a flag that is polled at the top of every frame and before
// finalising, and aborts the encoder. A cancelled or expired context is
// treated the same way. Cancellation is not an error: StartExport returns a
// Result with Cancelled set and a nil error, and no error progress event is
// emitted.
//
// On every exit path the playback controller is restored to the exact beat
// and play state it had before the export started, and no surface is left
// checked out of the pool.
package export

import (
	"context"
	"time"

	"github.com/matzehuels/seqexport/pkg/canvas"
)

// FrameSource draws the animation at a (possibly fractional) beat.
type FrameSource interface {
	RenderFrame(surface *canvas.Surface, beat float64) error
}

// Overlay draws supplementary content, such as a title, over a frame.
type Overlay interface {
	DrawOverlay(surface *canvas.Surface, beat float64) error
}

// PlaybackController is the live player the export borrows.
type PlaybackController interface {
	JumpToBeat(beat float64)
	TogglePlayback()
	IsPlaying() bool
	CurrentBeat() float64
}

// Delivery persists the finished artifact.
type Delivery interface {
	Save(ctx context.Context, blob []byte, filename string) error
}

// FrameClock signals render-frame boundaries.
type FrameClock interface {
	// WaitFrame blocks until the next frame boundary or ctx is done.
	WaitFrame(ctx context.Context) error
}

// Result describes a finished job.
type Result struct {
	JobID     string
	Format    string
	Filename  string
	Blob      []byte
	Width     int
	Height    int
	Frames    int
	Cancelled bool
	Stats     Stats
}

// Stats holds per-stage timings.
type Stats struct {
	CaptureTime   time.Duration
	EncodeTime    time.Duration
	TranscodeTime time.Duration
	TotalTime     time.Duration
}
