package bench

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateName(t *testing.T) {
	tests := []struct {
		i, count int
		want     string
	}{
		{0, 1, "f.0"},
		{3, 10, "f.3"},
		{3, 11, "f.03"},
		{42, 1000, "f.042"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CreateName("f.", tt.i, tt.count))
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "data.")

	stats, err := Create(context.Background(), CreateOptions{Prefix: prefix, Count: 12, Size: 2500000})
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Files)
	assert.Equal(t, uint64(12*2500000), stats.Bytes)

	data, err := os.ReadFile(prefix + "07")
	require.NoError(t, err)
	require.Len(t, data, 2500000)
	assert.Equal(t, byte(0xff), data[0])
	assert.Equal(t, byte(0xff), data[len(data)-1])
}

func TestCreateStopsAtFirstFailure(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "missing", "f.")

	stats, err := Create(context.Background(), CreateOptions{Prefix: prefix, Count: 3, Size: 10})
	require.Error(t, err)
	assert.Zero(t, stats.Files)
}

func TestCreateInvalidCount(t *testing.T) {
	_, err := Create(context.Background(), CreateOptions{Prefix: "x", Count: 0})
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"32m", 32 << 20, false},
		{"1K", 1 << 10, false},
		{"1g", 1 << 30, false},
		{".5g", 1 << 29, false},
		{"2t", 2 << 40, false},
		{"10 MB", 10 * 1000 * 1000, false},
		{"1.5GiB", 3 << 29, false},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
