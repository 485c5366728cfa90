package main

import (
	"fmt"

	"grading-assistant-core/internal/queue"

	"github.com/spf13/cobra"
)

var requeueMax int

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the sync trigger queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pending and dead-lettered sync triggers",
	RunE:  runQueueStats,
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Move dead-lettered sync triggers back onto the queue",
	RunE:  runQueueRequeue,
}

func init() {
	queueRequeueCmd.Flags().IntVar(&requeueMax, "max", 0, "Maximum triggers to move (0 moves all)")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRequeueCmd)
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	syncQueue, err := queue.OpenSyncQueue(cfg)
	if err != nil {
		return err
	}
	defer syncQueue.Close()

	stats, err := syncQueue.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runQueueRequeue(cmd *cobra.Command, args []string) error {
	syncQueue, err := queue.OpenSyncQueue(cfg)
	if err != nil {
		return err
	}
	defer syncQueue.Close()

	moved, err := syncQueue.Requeue(cmd.Context(), requeueMax)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d trigger(s)\n", moved)
	return nil
}
