// Package delivery saves finished export artifacts.
package delivery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/seqexport/pkg/errors"
)

// DefaultBaseName is used when a sequence has no usable title.
const DefaultBaseName = "sequence"

// maxBaseLen leaves room for the timestamp and extension under 255 bytes.
const maxBaseLen = 200

// Dir writes artifacts into a directory.
type Dir struct {
	path   string
	logger *log.Logger
}

// NewDir returns a Dir, creating path if needed.
func NewDir(path string, logger *log.Logger) (*Dir, error) {
	if path == "" {
		path = "."
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create output dir %s", path)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dir{path: path, logger: logger}, nil
}

// Path returns the output directory.
func (d *Dir) Path() string { return d.path }

// Save writes blob to filename inside the directory. The file appears
// atomically: readers see either nothing or the complete artifact.
func (d *Dir) Save(ctx context.Context, blob []byte, filename string) error {
	if err := errors.ValidateFilename(filename); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeDeliveryFailed, err, "save %s", filename)
	}

	tmp, err := os.CreateTemp(d.path, "."+filename+".*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeDeliveryFailed, err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeDeliveryFailed, err, "write %s", filename)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeDeliveryFailed, err, "close %s", filename)
	}
	dst := filepath.Join(d.path, filename)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrap(errors.ErrCodeDeliveryFailed, err, "move into place")
	}

	d.logger.Info("saved artifact", "path", dst, "bytes", len(blob))
	return nil
}

// Filename builds "<title>-<yyyymmdd-hhmmss>.<format>" with the title
// reduced to lowercase letters, digits and single dashes.
func Filename(title, format string, now time.Time) string {
	base := slug(title)
	if base == "" {
		base = DefaultBaseName
	}
	return base + "-" + now.Format("20060102-150405") + "." + format
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxBaseLen {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
