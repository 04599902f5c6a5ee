// Package report collects the outcome of a benchmark job and publishes it.
//
// A Report is assembled on the coordinator from reduced statistics and
// handed to a Sink: the log, a local YAML/JSON file or an S3 object.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of a report document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks JSON for ".json" paths and YAML otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Report describes one job.
type Report struct {
	Job       string    `yaml:"job" json:"job"`
	Direction string    `yaml:"direction" json:"direction"`
	Started   time.Time `yaml:"started" json:"started"`

	Nodes     int `yaml:"nodes" json:"nodes"`
	Processes int `yaml:"processes" json:"processes"`

	Files       int     `yaml:"files" json:"files"`
	Bytes       uint64  `yaml:"bytes" json:"bytes"`
	Records     int     `yaml:"records" json:"records"`
	Targets     int     `yaml:"targets" json:"targets"`
	ScanErrors  int     `yaml:"scan_errors" json:"scan_errors"`
	ScanSeconds float64 `yaml:"scan_seconds" json:"scan_seconds"`

	Results []Result `yaml:"results" json:"results"`
}

// Result is one strategy run summed over every process.
type Result struct {
	Iteration int    `yaml:"iteration" json:"iteration"`
	Strategy  string `yaml:"strategy" json:"strategy"`

	// Seconds is the wall time between the barriers around the run.
	Seconds float64 `yaml:"seconds" json:"seconds"`

	Bytes  uint64 `yaml:"bytes" json:"bytes"`
	Files  int    `yaml:"files" json:"files"`
	Errors int    `yaml:"errors" json:"errors"`

	MetadataSeconds float64 `yaml:"metadata_seconds" json:"metadata_seconds"`
	DataSeconds     float64 `yaml:"data_seconds" json:"data_seconds"`

	// Mismatch is set when Bytes differs from the file set total.
	Mismatch bool `yaml:"mismatch" json:"mismatch"`
}

// Throughput returns bytes per second of wall time.
func (r Result) Throughput() float64 {
	if r.Seconds <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Seconds
}

// MetadataFraction returns the share of I/O time spent in open and close.
func (r Result) MetadataFraction() float64 {
	total := r.MetadataSeconds + r.DataSeconds
	if total <= 0 {
		return 0
	}
	return r.MetadataSeconds / total
}

// Encode renders r in the given format.
func Encode(r *Report, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "":
		data, err := yaml.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// Lines renders r as human readable text, one entry per line.
func (r *Report) Lines() []string {
	lines := []string{
		fmt.Sprintf("job %s: %s, nodes=%d np=%d", r.Job, r.Direction, r.Nodes, r.Processes),
		fmt.Sprintf("%d files scanned in %.6fs (%d errors), %d records on %d targets",
			r.Files, r.ScanSeconds, r.ScanErrors, r.Records, r.Targets),
		fmt.Sprintf("total %s (%d bytes)", humanize.IBytes(r.Bytes), r.Bytes),
	}

	iteration := -1
	for _, res := range r.Results {
		if res.Iteration != iteration {
			iteration = res.Iteration
			lines = append(lines, fmt.Sprintf("Test %d", iteration))
		}
		line := fmt.Sprintf("  %-12s %.6fs, %s/s (%.1f%% metadata time)",
			res.Strategy+":", res.Seconds, humanize.IBytes(uint64(res.Throughput())), 100*res.MetadataFraction())
		if res.Errors > 0 {
			line += fmt.Sprintf(", %d errors", res.Errors)
		}
		lines = append(lines, line)
		if res.Mismatch {
			lines = append(lines, fmt.Sprintf("  ERROR %s %s %d of %d bytes", res.Strategy, pastTense(r.Direction), res.Bytes, r.Bytes))
		}
	}
	return lines
}

func pastTense(direction string) string {
	if direction == "write" {
		return "wrote"
	}
	return "read"
}

// Sink publishes a finished report.
type Sink interface {
	Write(ctx context.Context, r *Report) error
}
