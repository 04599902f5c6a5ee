package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/marmos91/lustrebulk/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSetRoundTrip(t *testing.T) {
	fs := content.NewFileSet()
	require.NoError(t, fs.Add("/data/zero", 0))
	require.NoError(t, fs.Add("/data/big", 3145729))
	require.NoError(t, fs.Add("/data/one", 1))

	data, err := PackFileSet(fs)
	require.NoError(t, err)

	assert.Equal(t, int32(3), int32(binary.BigEndian.Uint32(data[0:4])))
	blob := "/data/big\x00/data/one\x00/data/zero\x00"
	assert.Equal(t, int32(len(blob)), int32(binary.BigEndian.Uint32(data[4:8])))
	assert.Equal(t, blob, string(data[8:8+len(blob)]))

	got, err := UnpackFileSet(data)
	require.NoError(t, err)
	assert.Equal(t, fs.Paths(), got.Paths())
	assert.Equal(t, fs.TotalBytes(), got.TotalBytes())
	size, ok := got.Size("/data/big")
	assert.True(t, ok)
	assert.Equal(t, uint64(3145729), size)
}

func TestFileSetEmpty(t *testing.T) {
	data, err := PackFileSet(content.NewFileSet())
	require.NoError(t, err)
	assert.Len(t, data, 8)

	got, err := UnpackFileSet(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestUnpackFileSetMalformed(t *testing.T) {
	fs := content.NewFileSet()
	require.NoError(t, fs.Add("/a", 1))
	data, err := PackFileSet(fs)
	require.NoError(t, err)

	_, err = UnpackFileSet(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = UnpackFileSet(append(bytes.Clone(data), 0))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = UnpackFileSet(data[:3])
	assert.Error(t, err)
}

func TestFrameHeader(t *testing.T) {
	h := FrameHeader{Magic: FrameMagic, From: 3, Tag: 9, Length: 1024}
	copy(h.Job[:], "0123456789abcdef")

	data, err := h.Encode()
	require.NoError(t, err)
	require.Len(t, data, FrameHeaderSize)

	got, err := ReadFrameHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, h, *got)

	binary.BigEndian.PutUint32(data, 0xdeadbeef)
	_, err = ReadFrameHeader(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrBadMagic)
}
