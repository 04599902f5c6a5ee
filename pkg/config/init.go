package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# lustrebulk Configuration File
#
# Every key can be overridden with an environment variable:
#   LUSTREBULK_<SECTION>_<KEY>, e.g. LUSTREBULK_LOGGING_LEVEL=DEBUG
# group.rank and group.size also honor the variables set by common
# launchers (PMI_RANK, OMPI_COMM_WORLD_RANK, SLURM_PROCID, ...).
`

// sectionComments documents the top-level sections of a generated file.
var sectionComments = map[string]string{
	"logging": "Log output: level (DEBUG|INFO|WARN|ERROR), format (text|json), output (stdout|stderr|<path>)",
	"group": "Process group. transport: loopback runs size ranks in this process over\n" +
		"nodes simulated nodes; tcp runs one rank per process, rank 0 listens on\n" +
		"coordinator and the others register with it.",
	"scan": "Residency collector: lustre queries stripe layouts with ioctl,\n" +
		"static emulates them on other filesystems.",
	"cache":   "Layout cache (none|badger). Entries are reused while size and mtime match.",
	"io":      "Transfer engine. max_bytes_per_second throttles each process (0 = unlimited).",
	"job":     "Benchmark iterations. single adds the single-process baseline.",
	"metrics": "Prometheus endpoint on port + local rank.",
	"report":  "Report destination besides the log (log|file|s3).",
}

// InitConfig writes a default configuration file to the default location
// and returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use -force to overwrite)", path)
		}
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg with a header and one comment
// above each top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if doc.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var b strings.Builder
	b.WriteString(configHeader)
	b.WriteString("\n")

	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return b.String(), nil
}
