package engine

import (
	"io"
	"os"
)

// File is the subset of *os.File the engine uses.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// FileSystem opens files for the engine.
type FileSystem interface {
	Open(path string, dir Direction) (File, error)
}

// OSFileSystem opens files on the local filesystem. Files opened for
// writing are created (mode 0644) but not truncated.
type OSFileSystem struct{}

func (OSFileSystem) Open(path string, dir Direction) (File, error) {
	if dir == Write {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	}
	return os.Open(path)
}
