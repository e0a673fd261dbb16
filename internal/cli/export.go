package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/testit-tms/migrators-sub001/internal/assembler"
	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/content"
	"github.com/testit-tms/migrators-sub001/internal/exporter"
	"github.com/testit-tms/migrators-sub001/internal/source/zephyr"
	"github.com/testit-tms/migrators-sub001/internal/storage"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a project from the source system",
	Long:  `Reads sections, attributes, shared steps, test cases and attachments from the configured source and writes them to the result directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closeLog, err := setup(config.CommandExport)
		if err != nil {
			return err
		}
		defer closeLog()

		if exportOutput != "" {
			cfg.ResultPath = exportOutput
		}
		store, err := storage.New(cfg.ResultPath)
		if err != nil {
			return err
		}

		asm := assembler.New(content.NewDefaultRegistry(), log)
		source := zephyr.NewFromConfig(cfg, log)
		exp := exporter.NewExporter(source, asm, store, exporter.OptionsFromConfig(cfg), log)

		log.Infof("Exporting %s from %s into %s", cfg.Zephyr.ProjectKey, cfg.Zephyr.URL, cfg.ResultPath)
		report, err := exp.Export(cmd.Context())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		log.Infof("Exported %q: %d test case(s), %d shared step(s), %d attachment(s) (%s), skipped %d",
			report.Project, report.TestCases, report.SharedSteps, report.Attachments,
			humanize.Bytes(uint64(report.Bytes)), report.Skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "result directory (overrides result_path)")
	rootCmd.AddCommand(exportCmd)
}
