package config

import (
	"fmt"
	"strings"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Command names a CLI action whose settings must be present.
type Command string

const (
	CommandExport Command = "export"
	CommandImport Command = "import"
	CommandMerge  Command = "merge"
)

// Validate checks the Config for required fields and valid values. Section
// specific checks run only for the given commands; with none, every section
// is checked.
func Validate(cfg *Config, commands ...Command) error {
	var errs []string

	want := make(map[Command]bool)
	for _, c := range commands {
		want[c] = true
	}
	all := len(commands) == 0

	// HTTP validation
	if cfg.HTTP.RetryCount < 0 {
		errs = append(errs, "http.retry_count must not be negative")
	}
	if cfg.HTTP.RetryDelay < 0 {
		errs = append(errs, "http.retry_delay must not be negative")
	}
	if cfg.HTTP.Timeout <= 0 {
		errs = append(errs, "http.timeout must be positive")
	}

	if all || want[CommandExport] || want[CommandImport] {
		if cfg.ResultPath == "" {
			errs = append(errs, "result_path must not be empty")
		}
	}

	// Export validation
	if all || want[CommandExport] {
		if cfg.Export.Source != "zephyr-scale" {
			errs = append(errs, fmt.Sprintf("export.source must be one of: zephyr-scale (got %q)", cfg.Export.Source))
		}
		if cfg.Export.Concurrency < 0 {
			errs = append(errs, "export.concurrency must not be negative")
		}
		if cfg.Zephyr.URL == "" {
			errs = append(errs, "zephyr.url must not be empty")
		}
		if cfg.Zephyr.Token == "" {
			errs = append(errs, "zephyr.token must not be empty")
		}
		if cfg.Zephyr.ProjectKey == "" {
			errs = append(errs, "zephyr.project_key must not be empty")
		}
	}

	// Import validation
	if all || want[CommandImport] {
		if cfg.TestIT.URL == "" {
			errs = append(errs, "testit.url must not be empty")
		}
		if cfg.TestIT.PrivateToken == "" {
			errs = append(errs, "testit.private_token must not be empty")
		}
	}

	// Merge validation
	if all || want[CommandMerge] {
		if cfg.Merge.BatchRoot == "" {
			errs = append(errs, "merge.batch_root must not be empty")
		}
		if cfg.Merge.OutputPath == "" {
			errs = append(errs, "merge.output_path must not be empty")
		}
	}

	// Validate logging level
	if cfg.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[cfg.Logging.Level] {
			errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
		}
	}

	if len(errs) > 0 {
		return domain.NewError("config", "", fmt.Sprintf("validation failed: %s", strings.Join(errs, "; ")), nil)
	}

	return nil
}
