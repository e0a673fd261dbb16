package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/merge"
	"github.com/testit-tms/migrators-sub001/internal/scanner"
)

var (
	mergeBatchRoot string
	mergeOutput    string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge exported batches into one directory",
	Long: `Combines every exported batch below the batch root into one directory,
deduplicating sections and attributes by name and rewriting references to
the dropped duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if mergeBatchRoot != "" {
			cfg.Merge.BatchRoot = mergeBatchRoot
		}
		if mergeOutput != "" {
			cfg.Merge.OutputPath = mergeOutput
		}
		if err := config.Validate(cfg, config.CommandMerge); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
		log, closeLog, err := NewLogger(cfg.Logging, verbose)
		if err != nil {
			return err
		}
		defer closeLog()

		engine := merge.NewEngine(scanner.NewScanner(true), log)
		report, err := engine.Merge(cmd.Context(), cfg.Merge.BatchRoot, cfg.Merge.OutputPath)
		if err != nil {
			return fmt.Errorf("merge failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %d batch(es) into %s\n", report.Batches, cfg.Merge.OutputPath)
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeBatchRoot, "batch-root", "", "directory holding the batches (overrides merge.batch_root)")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "merged directory (overrides merge.output_path)")
	rootCmd.AddCommand(mergeCmd)
}
