package main

import (
	"fmt"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/queue"

	"github.com/spf13/cobra"
)

var triggerReason string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push unsynced records and pull remote ones",
	RunE:  runSync,
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Queue a sync for the sync worker",
	RunE:  runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerReason, "reason", "manual", "Trigger reason (manual, foreground, import)")
}

func runSync(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if cfg.RemoteAPI.BaseURL == "" {
		fmt.Fprintln(out, "No remote store configured; records stay local.")
		return nil
	}

	records, closeFn, err := openRecords()
	if err != nil {
		return err
	}
	defer closeFn()

	engine := newEngine(records)
	engine.Subscribe(func(s model.SyncState) {
		if s.Message != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "sync %s: %s\n", s.Status, s.Message)
		}
	})

	result, err := engine.Sync(cmd.Context())
	if err != nil {
		return err
	}
	if result.Skipped {
		fmt.Fprintf(out, "Sync skipped: %s\n", result.SkipReason)
		return nil
	}
	return printJSON(out, result)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	syncQueue, err := queue.OpenSyncQueue(cfg)
	if err != nil {
		return err
	}
	defer syncQueue.Close()

	producer := queue.NewProducer(syncQueue)
	trigger := model.SyncTrigger{
		DeviceID:     cfg.License.DeviceID,
		ActivationID: cfg.License.ActivationID,
		Reason:       triggerReason,
	}
	if err := producer.EnqueueSyncTrigger(cmd.Context(), trigger); err != nil {
		return fmt.Errorf("failed to queue sync: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Sync queued")
	return nil
}
