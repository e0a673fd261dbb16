package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/testit-tms/migrators-sub001/internal/domain"
)

// Config is the top-level configuration struct.
type Config struct {
	ResultPath string        `yaml:"result_path"`
	Logging    LoggingConfig `yaml:"logging"`
	HTTP       HTTPConfig    `yaml:"http"`
	Export     ExportConfig  `yaml:"export"`
	Zephyr     ZephyrConfig  `yaml:"zephyr"`
	TestIT     TestITConfig  `yaml:"testit"`
	Import     ImportConfig  `yaml:"import"`
	Merge      MergeConfig   `yaml:"merge"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// HTTPConfig controls the vendor API clients. Retries use a fixed delay.
type HTTPConfig struct {
	RetryCount int           `yaml:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ExportConfig struct {
	Source        string `yaml:"source"`
	RootSection   string `yaml:"root_section"`
	SkipMalformed bool   `yaml:"skip_malformed"`
	Concurrency   int    `yaml:"concurrency"` // parallel step detail fetches
}

type ZephyrConfig struct {
	URL        string `yaml:"url"`
	Token      string `yaml:"token"`
	ProjectKey string `yaml:"project_key"`
}

type TestITConfig struct {
	URL                     string `yaml:"url"`
	PrivateToken            string `yaml:"private_token"`
	ProjectName             string `yaml:"project_name"`
	ImportToExistingProject bool   `yaml:"import_to_existing_project"`
}

type ImportConfig struct {
	SkipMalformed bool `yaml:"skip_malformed"`
}

type MergeConfig struct {
	BatchRoot  string `yaml:"batch_root"`
	OutputPath string `yaml:"output_path"`
}

// Load reads a YAML configuration file and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewError("config", path, "failed to read config file", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.NewError("config", path, "failed to parse config file", err)
	}

	return cfg, nil
}
