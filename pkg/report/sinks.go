package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/lustrebulk/internal/logger"
)

// LogSink writes the report through the logger at INFO level.
type LogSink struct{}

func (LogSink) Write(_ context.Context, r *Report) error {
	for _, line := range r.Lines() {
		logger.Info("%s", line)
	}
	return nil
}

// FileSink writes the report to a local file. The format follows the
// file extension.
type FileSink struct {
	Path string
}

func (s FileSink) Write(_ context.Context, r *Report) error {
	data, err := Encode(r, FormatForPath(s.Path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("Report written to %s", s.Path)
	return nil
}

// PutObjectAPI is the subset of the S3 client used by S3Sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the report as one object named
// <KeyPrefix><job>.<format>.
type S3Sink struct {
	Client    PutObjectAPI
	Bucket    string
	KeyPrefix string
	Format    Format
}

// Key returns the object key used for r.
func (s S3Sink) Key(r *Report) string {
	format := s.Format
	if format == "" {
		format = FormatYAML
	}
	return path.Clean(s.KeyPrefix+r.Job) + "." + string(format)
}

func (s S3Sink) Write(ctx context.Context, r *Report) error {
	data, err := Encode(r, s.Format)
	if err != nil {
		return err
	}

	contentType := "application/yaml"
	if s.Format == FormatJSON {
		contentType = "application/json"
	}

	key := s.Key(r)
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", s.Bucket, key, err)
	}

	logger.Info("Report uploaded to s3://%s/%s", s.Bucket, key)
	return nil
}

// Multi writes to every sink and returns the first error.
type Multi []Sink

func (m Multi) Write(ctx context.Context, r *Report) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
