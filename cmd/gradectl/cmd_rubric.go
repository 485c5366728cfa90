package main

import (
	"encoding/json"
	"fmt"
	"os"

	"grading-assistant-core/internal/rubric"
	"grading-assistant-core/internal/storage"

	"github.com/spf13/cobra"
)

var (
	rubricDefaults rubric.Defaults
	rubricOutput   string
	rubricScope    []string
)

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Inspect and edit rubric documents",
}

var rubricNormalizeCmd = &cobra.Command{
	Use:   "normalize <rubric.json>",
	Short: "Print the canonical point list of a rubric document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRubricNormalize,
}

var rubricApplyCmd = &cobra.Command{
	Use:   "apply <rubric.json> <points.json>",
	Short: "Write edited points back into a rubric document",
	Long: `Writes the point list in points.json back into the rubric's own layout.
Fields the editor does not know about are kept as they are. Segmented rubrics
are read-only.`,
	Args: cobra.ExactArgs(2),
	RunE: runRubricApply,
}

var rubricPutCmd = &cobra.Command{
	Use:   "put <question-key> <rubric.json>",
	Short: "Store a rubric document in blob storage",
	Args:  cobra.ExactArgs(2),
	RunE:  runRubricPut,
}

var rubricGetCmd = &cobra.Command{
	Use:   "get <question-key>",
	Short: "Print a stored rubric document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRubricGet,
}

func init() {
	for _, c := range []*cobra.Command{rubricNormalizeCmd, rubricApplyCmd} {
		c.Flags().StringVar(&rubricDefaults.QuestionID, "question-id", "", "Question id used when the document has none")
		c.Flags().StringVar(&rubricDefaults.Subject, "subject", "", "Subject used when the document has none")
		c.Flags().Float64Var(&rubricDefaults.TotalScore, "total", 0, "Total score used when the document has none")
	}
	rubricApplyCmd.Flags().StringVarP(&rubricOutput, "output", "o", "", "Write the result here instead of stdout")
	for _, c := range []*cobra.Command{rubricPutCmd, rubricGetCmd} {
		c.Flags().StringSliceVar(&rubricScope, "scope", nil, "Key scope, e.g. --scope platform,course")
	}

	rubricCmd.AddCommand(rubricNormalizeCmd)
	rubricCmd.AddCommand(rubricApplyCmd)
	rubricCmd.AddCommand(rubricPutCmd)
	rubricCmd.AddCommand(rubricGetCmd)
}

func runRubricNormalize(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	res := rubric.Normalize(string(data), rubricDefaults)
	if res.ParseFailed() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; showing defaults\n", res.ParseError)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runRubricApply(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	pointData, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	var points []rubric.Point
	if err := json.Unmarshal(pointData, &points); err != nil {
		return fmt.Errorf("failed to read points: %w", err)
	}

	session := rubric.Open(string(data), rubricDefaults)
	if !session.Editable() {
		reason := session.Result().ReadOnlyReason
		if reason == "" {
			reason = "the document is not valid JSON; edit it as text"
		}
		return fmt.Errorf("rubric cannot be edited: %s", reason)
	}

	doc, err := session.Save(points)
	if err != nil {
		return err
	}

	if rubricOutput != "" {
		return os.WriteFile(rubricOutput, []byte(doc), 0o644)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
	return err
}

func newRubricRepository() (*rubric.Repository, error) {
	s3, err := storage.NewS3Storage(cfg)
	if err != nil {
		return nil, err
	}
	return rubric.NewRepository(s3, cfg.Storage.RubricPrefix), nil
}

func runRubricPut(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	repo, err := newRubricRepository()
	if err != nil {
		return err
	}

	key := rubric.Key(args[0], rubricScope...)
	if err := repo.Save(cmd.Context(), key, string(data)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored rubric %s\n", key)
	return nil
}

func runRubricGet(cmd *cobra.Command, args []string) error {
	repo, err := newRubricRepository()
	if err != nil {
		return err
	}

	doc, err := repo.Load(cmd.Context(), rubric.Key(args[0], rubricScope...))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), doc)
	return err
}
