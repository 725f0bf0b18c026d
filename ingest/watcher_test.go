package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func write(t testing.TB, filename, data string) {
	err := os.WriteFile(filename, []byte(data), 0600)
	if err != nil {
		t.Fatalf("write %v failed: %v", filename, err)
	}
}

// fakeBackend delivers synthetic events sent to it via Send.
type fakeBackend struct {
	ch      chan<- Event
	err     error
	watched string
	closed  chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{closed: make(chan struct{})}
}

func (b *fakeBackend) Watch(dir string, ch chan<- Event) error {
	if b.err != nil {
		return b.err
	}

	b.watched = dir
	b.ch = ch

	return nil
}

func (b *fakeBackend) Close() error {
	close(b.closed)

	return nil
}

func (b *fakeBackend) Send(path string, op Op) {
	b.ch <- Event{Path: path, Op: op}
}

// runWatcher starts w in the background and waits until it is ready. The
// returned function stops the watcher and returns its error.
func runWatcher(t testing.TB, w *Watcher) (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())

	wg, ctx := errgroup.WithContext(ctx)

	ready := make(chan struct{})
	w.OnStartWatching = func() {
		close(ready)
	}

	w.SetLogger(logrus.StandardLogger())

	wg.Go(func() error {
		return w.Run(ctx)
	})

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatalf("watcher did not start: %v", wg.Wait())
	}

	return func() error {
		cancel()

		return wg.Wait()
	}
}

func TestWatcherDispatch(t *testing.T) {
	t.Parallel()

	tempdir := t.TempDir()
	backend := newFakeBackend()

	found := make(chan string, 10)
	w := &Watcher{
		Dir:     tempdir,
		Backend: backend,
		OnNewFile: func(_ context.Context, filename string) {
			found <- filename
		},
	}

	stop := runWatcher(t, w)

	if backend.watched != tempdir {
		t.Errorf("wrong dir watched, want %v, got %v", tempdir, backend.watched)
	}

	file := filepath.Join(tempdir, "twit_a.txt")
	write(t, file, "data")

	subdir := filepath.Join(tempdir, "twit")

	err := os.Mkdir(subdir, 0755)
	if err != nil {
		t.Fatal(err)
	}

	gone := filepath.Join(tempdir, "twit_gone.txt")

	// the directory event must be dropped, all others are forwarded in order
	backend.Send(subdir, Create)
	backend.Send(file, Create)
	backend.Send(file, Write)
	backend.Send(gone, Create)

	for _, want := range []string{file, file, gone} {
		select {
		case got := <-found:
			if got != want {
				t.Errorf("wrong file forwarded, want %v, got %v", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %v", want)
		}
	}

	err = stop()
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-backend.closed:
	default:
		t.Error("backend was not closed")
	}

	select {
	case got := <-found:
		t.Errorf("unexpected file forwarded: %v", got)
	default:
	}
}

func TestWatcherIgnoresSymlinks(t *testing.T) {
	t.Parallel()

	tempdir := t.TempDir()
	backend := newFakeBackend()

	found := make(chan string, 10)
	w := &Watcher{
		Dir:     tempdir,
		Backend: backend,
		OnNewFile: func(_ context.Context, filename string) {
			found <- filename
		},
	}

	target := filepath.Join(tempdir, "target")
	write(t, target, "data")

	link := filepath.Join(tempdir, "twit_link")

	err := os.Symlink(target, link)
	if err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	stop := runWatcher(t, w)

	backend.Send(link, Create)
	backend.Send(target, Create)

	select {
	case got := <-found:
		if got != target {
			t.Errorf("wrong file forwarded, want %v, got %v", target, got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	err = stop()
	if err != nil {
		t.Fatal(err)
	}
}

func TestWatcherStartupFailure(t *testing.T) {
	t.Parallel()

	tempdir := t.TempDir()
	file := filepath.Join(tempdir, "file")
	write(t, file, "data")

	errWatch := errors.New("permission denied")

	failing := newFakeBackend()
	failing.err = errWatch

	tests := []struct {
		dir     string
		backend Backend
	}{
		{filepath.Join(tempdir, "missing"), newFakeBackend()},
		{file, newFakeBackend()},
		{tempdir, failing},
	}

	for _, test := range tests {
		w := &Watcher{
			Dir:     test.dir,
			Backend: test.backend,
			OnNewFile: func(context.Context, string) {
				t.Error("OnNewFile called")
			},
			OnStartWatching: func() {
				t.Error("OnStartWatching called")
			},
		}
		w.SetLogger(logrus.StandardLogger())

		err := w.Run(context.Background())
		if err == nil {
			t.Errorf("expected error for %v not found", test.dir)
		}
	}

	w := &Watcher{Dir: tempdir, Backend: failing}
	w.SetLogger(logrus.StandardLogger())

	err := w.Run(context.Background())
	if !errors.Is(err, errWatch) {
		t.Errorf("wrong error returned, want %v, got %v", errWatch, err)
	}
}

func testBackend(t *testing.T, backend Backend) {
	tempdir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	found := make(chan string, 100)
	w := &Watcher{
		Dir:     tempdir,
		Backend: backend,
		OnNewFile: func(_ context.Context, filename string) {
			found <- filename
		},
	}

	stop := runWatcher(t, w)

	err = os.Mkdir(filepath.Join(tempdir, "subdir"), 0755)
	if err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(tempdir, "twit_a.txt")
	write(t, file, "data")

	select {
	case got := <-found:
		if got != file {
			t.Errorf("wrong file reported, want %v, got %v", file, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for event for %v", file)
	}

	err = stop()
	if err != nil {
		t.Fatal(err)
	}
}

func TestNotifyBackend(t *testing.T) {
	testBackend(t, NewNotifyBackend())
}

func TestFSNotifyBackend(t *testing.T) {
	backend, err := NewFSNotifyBackend(logrus.StandardLogger())
	if err != nil {
		t.Fatal(err)
	}

	testBackend(t, backend)
}
