package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/lustrebulk/internal/logger"
)

func sampleReport() *Report {
	return &Report{
		Job:         "7b0c3d1e",
		Direction:   "read",
		Started:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Nodes:       2,
		Processes:   4,
		Files:       5,
		Bytes:       4 << 20,
		Records:     7,
		Targets:     3,
		ScanSeconds: 0.25,
		Results: []Result{
			{Iteration: 0, Strategy: "aligned", Seconds: 2, Bytes: 4 << 20, MetadataSeconds: 1, DataSeconds: 3},
			{Iteration: 0, Strategy: "round_robin", Seconds: 4, Bytes: 3 << 20, Errors: 1, Mismatch: true},
			{Iteration: 1, Strategy: "aligned", Seconds: 1, Bytes: 4 << 20},
		},
	}
}

func TestResult(t *testing.T) {
	r := Result{Seconds: 2, Bytes: 4 << 20, MetadataSeconds: 1, DataSeconds: 3}
	assert.Equal(t, float64(2<<20), r.Throughput())
	assert.Equal(t, 0.25, r.MetadataFraction())

	assert.Zero(t, Result{Bytes: 1}.Throughput())
	assert.Zero(t, Result{}.MetadataFraction())
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"report.json", FormatJSON},
		{"REPORT.JSON", FormatJSON},
		{"report.yaml", FormatYAML},
		{"report", FormatYAML},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatForPath(tt.path))
		})
	}
}

func TestEncode(t *testing.T) {
	r := sampleReport()

	t.Run("YAML", func(t *testing.T) {
		data, err := Encode(r, FormatYAML)
		require.NoError(t, err)

		var decoded Report
		require.NoError(t, yaml.Unmarshal(data, &decoded))
		assert.Equal(t, r.Job, decoded.Job)
		assert.Len(t, decoded.Results, 3)
		assert.True(t, decoded.Results[1].Mismatch)
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := Encode(r, FormatJSON)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "read", decoded["direction"])
		assert.EqualValues(t, 4<<20, decoded["bytes"])
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Encode(r, Format("xml"))
		assert.Error(t, err)
	})
}

func TestLines(t *testing.T) {
	lines := sampleReport().Lines()
	text := strings.Join(lines, "\n")

	assert.Contains(t, text, "nodes=2 np=4")
	assert.Contains(t, text, "total 4.0 MiB")
	assert.Contains(t, text, "Test 0")
	assert.Contains(t, text, "Test 1")
	assert.Contains(t, text, "2.0 MiB/s (25.0% metadata time)")
	assert.Contains(t, text, "1 errors")
	assert.Contains(t, text, "ERROR round_robin read 3145728 of 4194304 bytes")
	assert.Equal(t, 1, strings.Count(text, "Test 0"))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger.SetWriter(&buf)
	defer logger.SetWriter(os.Stdout)

	require.NoError(t, LogSink{}.Write(context.Background(), sampleReport()))
	assert.Contains(t, buf.String(), "job 7b0c3d1e")
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out", "report.json")

	require.NoError(t, FileSink{Path: p}.Write(context.Background(), sampleReport()))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 5, decoded.Files)
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	t.Run("Upload", func(t *testing.T) {
		client := &fakeS3{}
		sink := S3Sink{Client: client, Bucket: "bench", KeyPrefix: "runs/", Format: FormatJSON}

		require.NoError(t, sink.Write(context.Background(), sampleReport()))
		assert.Equal(t, "bench", aws.ToString(client.input.Bucket))
		assert.Equal(t, "runs/7b0c3d1e.json", aws.ToString(client.input.Key))
		assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))
		assert.EqualValues(t, len(client.body), aws.ToInt64(client.input.ContentLength))
	})

	t.Run("DefaultFormat", func(t *testing.T) {
		sink := S3Sink{}
		assert.Equal(t, "7b0c3d1e.yaml", sink.Key(sampleReport()))
	})

	t.Run("Error", func(t *testing.T) {
		sink := S3Sink{Client: &fakeS3{err: errors.New("denied")}, Bucket: "bench"}
		err := sink.Write(context.Background(), sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "s3://bench/")
	})
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, *Report) error { return f.err }

func TestMulti(t *testing.T) {
	first := errors.New("first")
	client := &fakeS3{}
	m := Multi{failingSink{first}, S3Sink{Client: client, Bucket: "b"}, failingSink{errors.New("second")}}

	err := m.Write(context.Background(), sampleReport())
	assert.ErrorIs(t, err, first)
	assert.NotNil(t, client.input, "later sinks still run")
}
