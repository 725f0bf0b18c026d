package mover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// DefaultStabilityDelay is the time a new file must rest before it is moved.
const DefaultStabilityDelay = 10 * time.Second

// Mover relocates files whose name starts with Prefix into DestDir.
type Mover struct {
	DestDir        string
	Prefix         string
	StabilityDelay time.Duration

	// OnFileMoved is called after a file has been moved from src to dst.
	OnFileMoved func(src, dst string)

	processed *ProcessedSet
	log       logrus.FieldLogger
}

// New returns a Mover for files starting with prefix.
func New(destDir, prefix string, delay time.Duration) *Mover {
	return &Mover{
		DestDir:        destDir,
		Prefix:         prefix,
		StabilityDelay: delay,
		processed:      NewProcessedSet(),
		log:            logrus.StandardLogger(),
	}
}

// SetLogger updates the logger to use.
func (m *Mover) SetLogger(logger logrus.FieldLogger) {
	m.log = logger.WithField("component", "mover")
}

// Processed returns the set of source paths moved by Process.
func (m *Mover) Processed() *ProcessedSet {
	return m.processed
}

// Matches reports whether the file name of path starts with the prefix.
func (m *Mover) Matches(path string) bool {
	return strings.HasPrefix(filepath.Base(path), m.Prefix)
}

// Process handles a notification for path. Matching files are given
// StabilityDelay to finish writing, probed and then moved to DestDir. Files
// which are still in use are left alone so that a later event can retry
// them.
func (m *Mover) Process(ctx context.Context, path string) {
	if m.processed.Contains(path) {
		return
	}

	if !m.Matches(path) {
		return
	}

	filename := filepath.Base(path)
	log := m.log.WithField("filename", filename)

	log.Debugf("wait %v before moving", m.StabilityDelay)

	if !sleep(ctx, m.StabilityDelay) {
		log.Debug("cancelled while waiting")

		return
	}

	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("file vanished, skipping")

		return
	}

	if err == nil {
		err = Probe(path)
	}

	if IsRetryable(err) {
		log.Warnf("file still being written, will retry: %v", err)

		return
	}

	if err != nil {
		log.Errorf("error moving file: %v", err)

		return
	}

	dst, err := m.Relocate(path)
	if err != nil {
		log.Errorf("error moving file: %v", err)

		return
	}

	m.processed.Add(path)
	m.moved(log, path, dst)
}

// Relocate moves path into DestDir under a name which does not exist there
// yet and returns the new path. DestDir is created if necessary.
func (m *Mover) Relocate(path string) (string, error) {
	err := os.MkdirAll(m.DestDir, 0755)
	if err != nil {
		return "", fmt.Errorf("create %v: %w", m.DestDir, err)
	}

	dst, err := ResolveDestination(m.DestDir, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}

	err = MoveFile(path, dst)
	if err != nil {
		return "", fmt.Errorf("move %v to %v: %w", path, dst, err)
	}

	return dst, nil
}

// Sweep moves all matching regular files already present in dir, without
// waiting for them to settle. Errors for single files are logged and the
// sweep continues. It returns the number of files moved.
func (m *Mover) Sweep(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("readdir %v: %w", dir, err)
	}

	moved := 0

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), m.Prefix) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		log := m.log.WithField("filename", entry.Name())

		dst, err := m.Relocate(path)
		if err != nil {
			log.Errorf("error moving existing file: %v", err)

			continue
		}

		moved++
		m.moved(log, path, dst)
	}

	return moved, nil
}

func (m *Mover) moved(log logrus.FieldLogger, src, dst string) {
	size := "unknown size"
	if fi, err := os.Stat(dst); err == nil {
		size = humanize.Bytes(uint64(fi.Size()))
	}

	log.WithField("target", dst).Infof("moved %v -> %v (%v)", filepath.Base(src), filepath.Base(dst), size)

	if m.OnFileMoved != nil {
		m.OnFileMoved(src, dst)
	}
}

// sleep waits for d and returns false if ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
