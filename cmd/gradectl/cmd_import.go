package main

import (
	"fmt"

	"grading-assistant-core/internal/excel"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/storage"

	"github.com/spf13/cobra"
)

var importFromStorage bool

var importCmd = &cobra.Command{
	Use:   "import <sheet.xlsx>",
	Short: "Append the rows of a grading spreadsheet to the local store",
	Long: `Imports an .xlsx sheet whose first worksheet has a header row with at
least student_name and score columns. With --s3 the argument is an object
key under storage.import_prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importFromStorage, "s3", false, "Read the sheet from blob storage")
}

func runImport(cmd *cobra.Command, args []string) error {
	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	var st storage.Storage
	if importFromStorage {
		s3, err := storage.NewS3Storage(cfg)
		if err != nil {
			return err
		}
		st = s3
	}
	importer := excel.NewImporter(records, st, cfg.Storage.ImportPrefix)

	var added []model.GradingRecord
	if importFromStorage {
		added, err = importer.ImportObject(cmd.Context(), args[0])
	} else {
		added, err = importer.ImportFile(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", len(added))
	return nil
}
