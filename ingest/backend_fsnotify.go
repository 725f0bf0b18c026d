package ingest

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FSNotifyBackend watches a directory with github.com/fsnotify/fsnotify.
type FSNotifyBackend struct {
	watcher *fsnotify.Watcher
	log     logrus.FieldLogger
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotifyBackend returns a new backend. Errors reported by fsnotify are
// logged to logger.
func NewFSNotifyBackend(logger logrus.FieldLogger) (*FSNotifyBackend, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FSNotifyBackend{
		watcher: watcher,
		log:     logger.WithField("component", "fsnotify"),
		done:    make(chan struct{}),
	}, nil
}

// Watch subscribes to create and write events for dir.
func (b *FSNotifyBackend) Watch(dir string, ch chan<- Event) error {
	err := b.watcher.Add(dir)
	if err != nil {
		return fmt.Errorf("watch %v: %w", dir, err)
	}

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		for {
			select {
			case ev, ok := <-b.watcher.Events:
				if !ok {
					return
				}

				var op Op
				if ev.Has(fsnotify.Create) {
					op |= Create
				}

				if ev.Has(fsnotify.Write) {
					op |= Write
				}

				if op == 0 {
					continue
				}

				select {
				case ch <- Event{Path: ev.Name, Op: op}:
				case <-b.done:
					return
				}
			case err, ok := <-b.watcher.Errors:
				if !ok {
					return
				}

				b.log.Warnf("fsnotify error: %v", err)
			}
		}
	}()

	return nil
}

// Close stops watching and waits for the forwarding goroutine to exit.
func (b *FSNotifyBackend) Close() error {
	close(b.done)
	err := b.watcher.Close()
	b.wg.Wait()

	return err
}
