package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/lustrebulk/pkg/wire"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	g := cfg.Group

	if g.Rank >= g.Size {
		return fmt.Errorf("group: rank %d out of range for size %d", g.Rank, g.Size)
	}

	switch g.Transport {
	case "loopback":
		if g.Rank != 0 {
			return fmt.Errorf("group: loopback transport runs every rank in one process, rank must be 0 (got %d)", g.Rank)
		}
		if g.Nodes > g.Size {
			return fmt.Errorf("group: %d simulated nodes need at least as many processes (size %d)", g.Nodes, g.Size)
		}
	case "tcp":
		if g.Size > 1 && g.Coordinator == "" {
			return fmt.Errorf("group: tcp transport with %d processes needs a coordinator address", g.Size)
		}
	}

	if cfg.Job.BlobLimit > wire.MaxBlobLength {
		return fmt.Errorf("job: blob_limit %d exceeds the protocol maximum %d", cfg.Job.BlobLimit, wire.MaxBlobLength)
	}

	if cfg.IO.Burst > 0 && cfg.IO.MaxBytesPerSecond == 0 {
		return fmt.Errorf("io: burst is set but max_bytes_per_second is 0")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
