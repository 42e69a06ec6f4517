package delivery

import (
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/matzehuels/seqexport/pkg/errors"
)

// LockName is the lock file a long-running writer holds in its output
// directory.
const LockName = ".seqexport.lock"

// Lock claims the directory for one long-running writer, such as an export
// server, so two servers cannot race on generated filenames. It fails
// immediately when another process holds the lock. The returned function
// releases it.
func (d *Dir) Lock() (func() error, error) {
	lock := flock.New(filepath.Join(d.path, LockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDeliveryFailed, err, "lock %s", d.path)
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeConcurrentExport,
			"output directory %s is in use by another seqexport process", d.path)
	}
	d.logger.Debug("locked output directory", "path", lock.Path())
	return lock.Unlock, nil
}
