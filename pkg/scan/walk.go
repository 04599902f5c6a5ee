package scan

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WalkFunc is called for every regular file found by a Walker, or with a
// non-nil err for a path that could not be visited. Returning an error
// stops the walk.
type WalkFunc func(path string, err error) error

type fileID struct {
	dev uint64
	ino uint64
}

// Walker enumerates the regular files under a set of roots.
//
// Paths are canonical: absolute, with every symlink resolved. Symlinks to
// directories are followed; a directory already visited (same device and
// inode) is not entered again, which also breaks symlink loops. A file
// reachable through several roots or links is reported once.
//
// Directory entries are visited in lexical order, so the walk order only
// depends on the tree.
type Walker struct {
	dirs  map[fileID]struct{}
	files map[string]struct{}
}

// Walk visits roots in order.
func (w *Walker) Walk(roots []string, fn WalkFunc) error {
	w.dirs = make(map[fileID]struct{})
	w.files = make(map[string]struct{})

	for _, root := range roots {
		path, err := Canonical(root)
		if err != nil {
			if err := fn(root, err); err != nil {
				return err
			}
			continue
		}
		if err := w.visit(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visit(path string, fn WalkFunc) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fn(path, &os.PathError{Op: "stat", Path: path, Err: err})
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG:
		if _, seen := w.files[path]; seen {
			return nil
		}
		w.files[path] = struct{}{}
		return fn(path, nil)

	case unix.S_IFDIR:
		id := fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}
		if _, seen := w.dirs[id]; seen {
			return nil
		}
		w.dirs[id] = struct{}{}

		entries, err := os.ReadDir(path)
		if err != nil {
			return fn(path, err)
		}
		for _, entry := range entries {
			child := filepath.Join(path, entry.Name())
			if entry.Type()&os.ModeSymlink != 0 {
				resolved, err := filepath.EvalSymlinks(child)
				if err != nil {
					if err := fn(child, err); err != nil {
						return err
					}
					continue
				}
				child = resolved
			}
			if err := w.visit(child, fn); err != nil {
				return err
			}
		}
		return nil

	default:
		return fn(path, fmt.Errorf("%s: %w", path, ErrNotRegular))
	}
}

// Canonical returns the absolute path of path with every symlink resolved.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
