package mover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// splitExt splits name into base name and extension at the last dot. Leading
// dots belong to the base name, so ".bashrc" has no extension.
func splitExt(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || strings.Trim(name[:i], ".") == "" {
		return name, ""
	}

	return name[:i], name[i:]
}

// exists reports whether any directory entry (including a dangling symlink)
// is present at path.
func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("lstat %v: %w", path, err)
	}

	return true, nil
}

// ResolveDestination returns a path within dir for filename which does not
// exist yet. When dir/filename is taken, "_1", "_2", ... is inserted between
// base name and extension until a free name is found.
func ResolveDestination(dir, filename string) (string, error) {
	dest := filepath.Join(dir, filename)
	base, ext := splitExt(filename)

	for n := 1; ; n++ {
		found, err := exists(dest)
		if err != nil {
			return "", err
		}

		if !found {
			return dest, nil
		}

		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}

// CheckTargetDir ensures that dir exists and is a directory.
func CheckTargetDir(dir string) error {
	fi, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("creating target dir %v: %w", dir, err)
		}

		fi, err = os.Stat(dir)
	}

	if err != nil {
		return fmt.Errorf("accessing target dir %v: %w", dir, err)
	}

	if !fi.IsDir() {
		return fmt.Errorf("target dir %v is not a directory", dir)
	}

	return nil
}
