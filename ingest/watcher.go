package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Watcher calls OnNewFile for every regular file which is created or modified
// in Dir. Subdirectories are not watched.
type Watcher struct {
	Dir string

	// Backend delivers the notifications, defaults to a NotifyBackend.
	Backend Backend

	// OnStartWatching is called when the watcher has subscribed to the
	// directory change events.
	OnStartWatching func()

	// OnNewFile is called for each event, on the watcher's goroutine.
	OnNewFile func(ctx context.Context, filename string)

	log logrus.FieldLogger
}

const defaultEventChanBuf = 20

// SetLogger updates the logger to use.
func (w *Watcher) SetLogger(logger logrus.FieldLogger) {
	w.log = logger.WithField("component", "watcher")
}

// Run starts the watcher, it terminates when ctx is cancelled. An error is
// returned when Dir cannot be watched.
func (w *Watcher) Run(ctx context.Context) (err error) {
	if w.log == nil {
		w.SetLogger(logrus.StandardLogger())
	}

	dir, err := filepath.Abs(w.Dir)
	if err != nil {
		return fmt.Errorf("unable to find absolute dir: %w", err)
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("watch dir %v is not a directory", dir)
	}

	backend := w.Backend
	if backend == nil {
		backend = NewNotifyBackend()
	}

	ch := make(chan Event, defaultEventChanBuf)

	err = backend.Watch(dir, ch)
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	defer func() {
		cerr := backend.Close()
		if err == nil {
			err = cerr
		}
	}()

	if w.OnStartWatching != nil {
		w.log.Debug("run hook OnStartWatching")
		w.OnStartWatching()
	}

	w.log.Infof("watching for new files in %v", dir)

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("stop watching")

			return nil
		case ev := <-ch:
			w.dispatch(ctx, ev)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, ev Event) {
	log := w.log.WithField("filename", filepath.Base(ev.Path))

	fi, err := os.Lstat(ev.Path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		// already gone, the handler decides what to do
	case err != nil:
		log.Warnf("stat failed: %v", err)

		return
	case fi.IsDir():
		log.Debugf("ignore %v event for directory", ev.Op)

		return
	case !fi.Mode().IsRegular():
		log.Debugf("ignore %v event for non-regular file", ev.Op)

		return
	}

	log.Debugf("%v event", ev.Op)

	w.OnNewFile(ctx, ev.Path)
}
