package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/errors"
)

var commandContext = exec.CommandContext

// FFmpeg transcodes through an ffmpeg binary built with libwebp.
type FFmpeg struct {
	binary string
	tmpDir string
	logger *log.Logger
}

// Option configures FFmpeg.
type Option func(*FFmpeg)

// WithBinary overrides the ffmpeg executable.
func WithBinary(binary string) Option {
	return func(f *FFmpeg) {
		if binary != "" {
			f.binary = binary
		}
	}
}

// WithTempDir sets the parent directory for scratch files.
func WithTempDir(dir string) Option {
	return func(f *FFmpeg) { f.tmpDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFFmpeg creates a transcoder using defaults.
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{binary: DefaultBinary, logger: log.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Args returns the ffmpeg arguments for converting in to out.
func Args(in, out string, opts Options) []string {
	lossless := "0"
	if opts.Lossless {
		lossless = "1"
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-c:v", "libwebp",
		"-lossless", lossless,
		"-q:v", strconv.Itoa(opts.Quality),
		"-loop", strconv.Itoa(opts.Loop),
		"-an",
		out,
	}
}

// Convert implements Transcoder.
func (f *FFmpeg) Convert(ctx context.Context, blob []byte, opts Options) ([]byte, error) {
	if len(blob) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nothing to transcode")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(f.tmpDir, "seqexport-transcode-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTranscodingFailed, err, "create scratch dir")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.gif")
	out := filepath.Join(dir, "output."+opts.Format)
	if err := os.WriteFile(in, blob, 0o600); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTranscodingFailed, err, "write input")
	}

	start := time.Now()
	cmd := commandContext(ctx, f.binary, Args(in, out, opts)...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeExportCancelled, ctx.Err(), "transcode interrupted")
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.Wrap(errors.ErrCodeTranscodingFailed, err, "%s: %s", f.binary, msg)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTranscodingFailed, err, "read output")
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeTranscodingFailed, "%s produced an empty file", f.binary)
	}

	f.logger.Debug("transcoded",
		"format", opts.Format,
		"in_bytes", len(blob),
		"out_bytes", len(data),
		"duration", time.Since(start))
	return data, nil
}

// LookPath reports whether the configured binary is on PATH.
func (f *FFmpeg) LookPath() (string, error) {
	path, err := exec.LookPath(f.binary)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", f.binary, err)
	}
	return path, nil
}

var _ Transcoder = (*FFmpeg)(nil)
