// Package pkg provides the libraries behind seqexport, which turns beat-based
// prop choreography into animated GIF and WebP images.
//
// # Overview
//
// A sequence is a list of props (named, coloured sticks) with keyframed
// positions over a number of beats. Exporting plays the sequence from beat 0
// to its last beat, draws each frame onto a grid of beat cells and encodes
// the captured frames:
//
//	sequence file (TOML)
//	         ↓
//	    [sequence] package (parse, interpolate, draw frames)
//	         ↓
//	    [dimension] package (grid shape and image size)
//	         ↓
//	    [export] package (capture loop on pooled [canvas] surfaces)
//	         ↓
//	    [encode] GIF, optionally [transcode] to WebP
//	         ↓
//	    [delivery] output directory
//
// # Quick Start
//
//	seq, _ := sequence.Load("weave.toml")
//	runner := export.NewRunner(nil, nil, nil, nil, nil)
//
//	req := export.Request{Layout: seq.LayoutRequest(1, true, false)}
//	plan, _ := runner.Plan(req)
//	renderer, _ := sequence.NewRenderer(seq, plan, sequence.DefaultStyle)
//	p, _ := runner.NewPipeline(export.Binding{
//	    Source:   renderer,
//	    Playback: sequence.NewPlayer(seq),
//	})
//	res, _ := runner.Export(ctx, p, req)
//	os.WriteFile("weave.gif", res.Blob, 0o644)
//
// # Main Packages
//
// [dimension] - Grid layout tables, title and footer band heights, and the
// image size for a beat count and scale.
//
// [canvas] - Memory-budgeted pool of RGBA surfaces keyed by size, with TTL
// eviction and a background sweeper.
//
// [export] - The single-in-flight export state machine: playback snapshot
// and restore, frame capture, encoding, transcoding, cancellation and
// progress events.
//
// [encode] and [transcode] - GIF encoding with parallel quantisation, and
// WebP conversion through ffmpeg with a cache in front.
//
// [cache] - Null, file and redis cache backends with key generation and
// retry on transient network errors.
//
// [server] - HTTP control surface for one sequence.
//
// [config] - TOML configuration file shared by the CLI and the server.
//
// # Error Handling
//
// Errors carry a code from [errors] so callers can map them to exit codes or
// HTTP statuses; [errors.UserMessage] gives a short description for display.
package pkg
