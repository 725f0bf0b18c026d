package mover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
)

// ErrFileBusy is returned by Probe when another process holds an exclusive
// lock on the file.
var ErrFileBusy = errors.New("file is locked by another process")

// Probe opens filename read-only and tries to take a shared lock without
// blocking. Both are released before Probe returns.
func Probe(filename string) error {
	lock := flock.New(filename, flock.SetFlag(os.O_RDONLY))

	ok, err := lock.TryRLock()
	if err != nil {
		return fmt.Errorf("probe %v: %w", filename, err)
	}

	if !ok {
		return ErrFileBusy
	}

	err = lock.Unlock()
	if err != nil {
		return fmt.Errorf("release %v: %w", filename, err)
	}

	return nil
}

// IsRetryable reports whether err means that the file is still in use and a
// later attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrFileBusy) ||
		errors.Is(err, fs.ErrPermission) ||
		isSharingViolation(err)
}
