package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/testit-tms/migrators-sub001/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command for the migrator.
var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Move test cases from a test management system into Test IT",
	Long: `migrator exports test cases, shared steps, sections, attributes and
attachments from a vendor system into a neutral directory format, merges
exported batches and imports the result into Test IT.

Everything is driven by a YAML configuration file (migrator.yaml).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "migrator.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	return ExecuteArgs(ctx, os.Args[1:]...)
}

// ExecuteArgs runs the root command with the given arguments.
func ExecuteArgs(ctx context.Context, args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// NewLogger builds the run logger. verbose forces debug level. When a log
// file is configured, output goes to stderr and the file. The returned
// function closes the file.
func NewLogger(cfg config.LoggingConfig, verbose bool) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid logging.level: %w", err)
		}
		level = parsed
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File == "" {
		return log, func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return log, f.Close, nil
}

// setup loads and validates the configuration for a command and builds
// the logger.
func setup(command config.Command) (*config.Config, *logrus.Logger, func() error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg, command); err != nil {
		return nil, nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	log, closeLog, err := NewLogger(cfg.Logging, verbose)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debugf("Loaded config from %s", cfgFile)
	return cfg, log, closeLog, nil
}
