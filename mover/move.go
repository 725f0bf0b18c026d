package mover

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MoveFile renames src to dst. When both are on different file systems the
// file is copied instead: the copy is written to a temporary file next to
// dst, verified against the source, renamed to dst and only then is src
// removed.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !isCrossDevice(err) {
		return fmt.Errorf("rename: %w", err)
	}

	return moveByCopy(src, dst)
}

func moveByCopy(src, dst string) (err error) {
	fi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".move-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, srcSum, err := copyVerified(src, tmp)
	if err != nil {
		return err
	}

	if n != fi.Size() {
		return fmt.Errorf("copy size mismatch for %v: source %d bytes, copied %d bytes", src, fi.Size(), n)
	}

	err = tmp.Sync()
	if err != nil {
		return fmt.Errorf("sync %v: %w", tmp.Name(), err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close %v: %w", tmp.Name(), err)
	}

	dstSum, err := hashFile(tmp.Name())
	if err != nil {
		return err
	}

	if !bytes.Equal(srcSum, dstSum) {
		return errors.New("copy hash mismatch")
	}

	err = os.Chmod(tmp.Name(), fi.Mode().Perm())
	if err != nil {
		return fmt.Errorf("chmod %v: %w", tmp.Name(), err)
	}

	err = os.Chtimes(tmp.Name(), fi.ModTime(), fi.ModTime())
	if err != nil {
		return fmt.Errorf("chtimes %v: %w", tmp.Name(), err)
	}

	err = os.Rename(tmp.Name(), dst)
	if err != nil {
		return fmt.Errorf("rename copy: %w", err)
	}

	err = os.Remove(src)
	if err != nil {
		return fmt.Errorf("remove source %v after copy: %w", src, err)
	}

	return nil
}

// copyVerified streams src into out and returns the number of bytes and the
// SHA-256 of the data read.
func copyVerified(src string, out io.Writer) (int64, []byte, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, nil, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	h := sha256.New()

	n, err := io.Copy(out, io.TeeReader(in, h))
	if err != nil {
		return n, nil, fmt.Errorf("copy %v: %w", src, err)
	}

	return n, h.Sum(nil), nil
}

func hashFile(filename string) ([]byte, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", filename, err)
	}
	defer f.Close()

	h := sha256.New()

	_, err = io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("read %v: %w", filename, err)
	}

	return h.Sum(nil), nil
}
