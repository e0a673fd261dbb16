package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testit-tms/migrators-sub001/internal/config"
	"github.com/testit-tms/migrators-sub001/internal/importer"
	"github.com/testit-tms/migrators-sub001/internal/storage"
	"github.com/testit-tms/migrators-sub001/internal/target/testit"
)

var importInput string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an exported directory into Test IT",
	Long:  `Creates the project, attributes, sections, shared steps and test cases of an exported directory in Test IT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closeLog, err := setup(config.CommandImport)
		if err != nil {
			return err
		}
		defer closeLog()

		if importInput != "" {
			cfg.ResultPath = importInput
		}
		store, err := storage.Open(cfg.ResultPath)
		if err != nil {
			return err
		}

		target := testit.NewFromConfig(cfg, log)
		imp := importer.NewImporter(target, store, importer.OptionsFromConfig(cfg), log)

		log.Infof("Importing %s into %s", cfg.ResultPath, cfg.TestIT.URL)
		report, err := imp.Import(cmd.Context())
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		log.Infof("Import into project %s finished", report.ProjectID)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "exported directory (overrides result_path)")
	rootCmd.AddCommand(importCmd)
}
