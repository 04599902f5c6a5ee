package content

import (
	"fmt"
	"sort"
)

// FileSet maps canonical file paths to their sizes.
//
// It is built once by the coordinator during the scan and replicated
// read-only to every process. Iteration is always in ascending path order,
// so every replica enumerates files identically; the round-robin baseline
// depends on that.
type FileSet struct {
	sizes  map[string]uint64
	sorted []string
	dirty  bool
}

// NewFileSet returns an empty set.
func NewFileSet() *FileSet {
	return &FileSet{sizes: make(map[string]uint64)}
}

// Add records a file. Adding an existing path with the same size is a no-op;
// a conflicting size returns ErrDuplicateFile.
func (fs *FileSet) Add(path string, size uint64) error {
	if existing, ok := fs.sizes[path]; ok {
		if existing != size {
			return fmt.Errorf("%s (%d vs %d bytes): %w", path, existing, size, ErrDuplicateFile)
		}
		return nil
	}
	fs.sizes[path] = size
	fs.dirty = true
	return nil
}

// Size returns the recorded size of path.
func (fs *FileSet) Size(path string) (uint64, bool) {
	size, ok := fs.sizes[path]
	return size, ok
}

// Len returns the number of files.
func (fs *FileSet) Len() int {
	return len(fs.sizes)
}

// Paths returns all paths in ascending order. The slice must not be modified.
func (fs *FileSet) Paths() []string {
	if fs.dirty || len(fs.sorted) != len(fs.sizes) {
		fs.sorted = fs.sorted[:0]
		for path := range fs.sizes {
			fs.sorted = append(fs.sorted, path)
		}
		sort.Strings(fs.sorted)
		fs.dirty = false
	}
	return fs.sorted
}

// Each calls fn for every file in path order, with its position in that order.
func (fs *FileSet) Each(fn func(index int, path string, size uint64)) {
	for i, path := range fs.Paths() {
		fn(i, path, fs.sizes[path])
	}
}

// TotalBytes returns the sum of all file sizes.
func (fs *FileSet) TotalBytes() uint64 {
	var total uint64
	for _, size := range fs.sizes {
		total += size
	}
	return total
}
