package wire

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/lustrebulk/pkg/content"
)

// fileSetHeader prefixes an encoded FileSet.
type fileSetHeader struct {
	FileCount  int32
	BlobLength int32
}

// PackFileSet encodes fs as a single message:
//
//	file_count            int32
//	filename_blob_length  int32
//	filename_blob         bytes (NUL-terminated names, sorted)
//	sizes                 uint64[file_count]
func PackFileSet(fs *content.FileSet) ([]byte, error) {
	paths := fs.Paths()

	blobLength := 0
	for _, path := range paths {
		if bytes.IndexByte([]byte(path), 0) >= 0 {
			return nil, fmt.Errorf("%q: %w", path, ErrInvalidName)
		}
		blobLength += len(path) + 1
		if blobLength > MaxBlobLength {
			return nil, fmt.Errorf("file set of %d files: %w", len(paths), ErrBlobTooLarge)
		}
	}

	var buf bytes.Buffer
	buf.Grow(8 + blobLength + 8*len(paths))

	header := fileSetHeader{FileCount: int32(len(paths)), BlobLength: int32(blobLength)}
	if _, err := xdr.Marshal(&buf, &header); err != nil {
		return nil, fmt.Errorf("encode file set header: %w", err)
	}

	sizes := make([]uint64, len(paths))
	for i, path := range paths {
		buf.WriteString(path)
		buf.WriteByte(0)
		sizes[i], _ = fs.Size(path)
	}
	buf.Write(EncodeValues(sizes))

	return buf.Bytes(), nil
}

// UnpackFileSet decodes a buffer produced by PackFileSet.
func UnpackFileSet(data []byte) (*content.FileSet, error) {
	r := bytes.NewReader(data)

	var header fileSetHeader
	if _, err := xdr.Unmarshal(r, &header); err != nil {
		return nil, fmt.Errorf("decode file set header: %w", err)
	}
	if header.FileCount < 0 || header.BlobLength < 0 {
		return nil, fmt.Errorf("file set header %+v: %w", header, ErrMalformed)
	}

	rest := data[len(data)-r.Len():]
	want := int(header.BlobLength) + 8*int(header.FileCount)
	if len(rest) != want {
		return nil, fmt.Errorf("file set body of %d bytes, expected %d: %w", len(rest), want, ErrMalformed)
	}

	names := rest[:header.BlobLength]
	sizes, err := DecodeValues(rest[header.BlobLength:])
	if err != nil {
		return nil, err
	}

	fs := content.NewFileSet()
	for i := range sizes {
		end := bytes.IndexByte(names, 0)
		if end < 0 {
			return nil, fmt.Errorf("file %d has no name terminator: %w", i, ErrMalformed)
		}
		if err := fs.Add(string(names[:end]), sizes[i]); err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}
		names = names[end+1:]
	}
	if len(names) != 0 {
		return nil, fmt.Errorf("%d trailing name bytes: %w", len(names), ErrMalformed)
	}
	return fs, nil
}
