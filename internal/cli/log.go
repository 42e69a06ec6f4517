// Package cli implements the seqexport command-line interface.
//
// The commands export sequences to animated GIF or WebP, print layout plans,
// serve the export pipeline over HTTP and manage the cache and config file.
// The CLI is built using cobra and logs through charmbracelet/log; terminal
// output is styled with lipgloss.
//
// # Commands
//
//   - export: Capture a sequence frame by frame and write the animation
//   - plan: Show the beat grid and image size an export would use
//   - serve: Expose the player and export pipeline over HTTP
//   - cache: Clear or locate the export and transcode cache
//   - config: Show, locate or create the configuration file
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which
// includes per-frame capture events and pool statistics.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
// The returned progress should call done when the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Export finished (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
