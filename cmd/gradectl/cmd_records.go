package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/store"

	"github.com/spf13/cobra"
)

var (
	listAll     bool
	listJSON    bool
	questionKey string
	questionNo  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy records from the legacy history key (runs once)",
	RunE:  runMigrate,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect and maintain local grading records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visible records (--all includes hidden ones)",
	RunE:  runRecordsList,
}

var recordsPruneCmd = &cobra.Command{
	Use:   "prune-hidden",
	Short: "Permanently remove hidden records to free storage",
	RunE:  runRecordsPrune,
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete-question",
	Short: "Delete every record of one question, remotely first when entitled",
	RunE:  runRecordsDeleteQuestion,
}

func init() {
	recordsListCmd.Flags().BoolVar(&listAll, "all", false, "Include hidden records")
	recordsListCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON")
	recordsListCmd.Flags().StringVar(&questionKey, "question-key", "", "Only records of this question key")
	recordsListCmd.Flags().StringVar(&questionNo, "question-no", "", "Only records of this question number")

	recordsDeleteCmd.Flags().StringVar(&questionKey, "question-key", "", "Question key")
	recordsDeleteCmd.Flags().StringVar(&questionNo, "question-no", "", "Question number")

	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsPruneCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := records.MigrateLegacy(cmd.Context())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d legacy records\n", n)
	return nil
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	all, err := records.GetAll(cmd.Context())
	if err != nil {
		return err
	}
	if !listAll {
		all = store.Visible(all)
	}
	filter := model.QuestionFilter{QuestionKey: questionKey, QuestionNo: questionNo}
	if !filter.IsEmpty() {
		var matched []model.GradingRecord
		for _, r := range all {
			if r.MatchesQuestion(filter) {
				matched = append(matched, r)
			}
		}
		all = matched
	}

	out := cmd.OutOrStdout()
	if listJSON {
		if all == nil {
			all = []model.GradingRecord{}
		}
		return printJSON(out, all)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tQUESTION\tSTUDENT\tSCORE\tGRADED\tSTATE")
	for _, r := range all {
		question := r.QuestionKey
		if question == "" {
			question = r.QuestionNo
		}
		if question == "" {
			question = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%g/%g\t%s\t%s\n",
			r.ID, question, r.StudentName, r.Score, r.MaxScore,
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339), recordState(r))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records\n", len(all))
	return nil
}

func recordState(r model.GradingRecord) string {
	var parts []string
	if r.IsHidden {
		parts = append(parts, "hidden")
	}
	if r.IsSynced() {
		parts = append(parts, "synced")
	} else {
		parts = append(parts, "local")
	}
	return strings.Join(parts, ",")
}

func runRecordsPrune(cmd *cobra.Command, args []string) error {
	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := records.PruneHidden(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d hidden records\n", n)
	return nil
}

func runRecordsDeleteQuestion(cmd *cobra.Command, args []string) error {
	filter := model.QuestionFilter{QuestionKey: questionKey, QuestionNo: questionNo}
	if filter.IsEmpty() {
		return fmt.Errorf("--question-key or --question-no is required")
	}

	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	local, remote, err := newEngine(records).DeleteQuestion(cmd.Context(), filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d local and %d remote records\n", local, remote)
	return nil
}
