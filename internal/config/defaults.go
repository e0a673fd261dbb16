package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		ResultPath: "./export",
		Logging: LoggingConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			RetryCount: 3,
			RetryDelay: 2 * time.Second,
			Timeout:    60 * time.Second,
		},
		Export: ExportConfig{
			Source:        "zephyr-scale",
			SkipMalformed: true,
			Concurrency:   4,
		},
		Import: ImportConfig{
			SkipMalformed: true,
		},
	}
}
