package ingest

import (
	"fmt"
	"sync"

	"github.com/rjeczalik/notify"
)

const defaultInotifyChanBuf = 200

// NotifyBackend watches a directory with github.com/rjeczalik/notify.
type NotifyBackend struct {
	ch   chan notify.EventInfo
	done chan struct{}
	wg   sync.WaitGroup
}

// NewNotifyBackend returns a new backend.
func NewNotifyBackend() *NotifyBackend {
	return &NotifyBackend{
		ch:   make(chan notify.EventInfo, defaultInotifyChanBuf),
		done: make(chan struct{}),
	}
}

// Watch subscribes to create and write events for dir.
func (b *NotifyBackend) Watch(dir string, ch chan<- Event) error {
	err := notify.Watch(dir, b.ch, notify.Create, notify.Write)
	if err != nil {
		return fmt.Errorf("watch %v: %w", dir, err)
	}

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		for {
			select {
			case <-b.done:
				return
			case ev := <-b.ch:
				var op Op

				switch ev.Event() {
				case notify.Create:
					op = Create
				case notify.Write:
					op = Write
				default:
					continue
				}

				select {
				case ch <- Event{Path: ev.Path(), Op: op}:
				case <-b.done:
					return
				}
			}
		}
	}()

	return nil
}

// Close stops watching and waits for the forwarding goroutine to exit.
func (b *NotifyBackend) Close() error {
	notify.Stop(b.ch)
	close(b.done)
	b.wg.Wait()

	return nil
}
