// Command gradectl manages the local grading record store: migration,
// listing, pruning, sync, spreadsheet import and rubric editing.
package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"grading-assistant-core/internal/config"
	"grading-assistant-core/internal/license"
	"grading-assistant-core/internal/logger"
	"grading-assistant-core/internal/model"
	"grading-assistant-core/internal/store"
	gradesync "grading-assistant-core/internal/sync"

	"github.com/spf13/cobra"
)

var (
	configPath string
	storePath  string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gradectl",
	Short: "Manage local grading records and rubrics",
	Long: `gradectl works on the device-local grading record store.

Records are always written locally first. Sync pushes unsynced records to
the remote store and pulls records graded on other devices; it only runs
for entitled identities.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Local store database (overrides local_store.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides logging.level)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(rubricCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing default file is not an
// error; every setting has a default.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
		if stderrors.Is(err, fs.ErrNotExist) {
			cfg = &config.Config{}
			cfg.ApplyDefaults()
			err = nil
		}
	}
	if err != nil {
		return err
	}

	if storePath != "" {
		cfg.LocalStore.Path = storePath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return nil
}

// openRecords opens the SQLite-backed record store.
func openRecords() (*store.Records, func(), error) {
	kv, err := store.NewSQLiteKV(cfg.LocalStore.Path, cfg.LocalStore.QuotaBytes)
	if err != nil {
		return nil, nil, err
	}
	records := store.NewRecords(kv, store.KeysFromConfig(cfg.LocalStore))
	return records, func() { kv.Close() }, nil
}

// newGate asks the remote license endpoint when a remote store is
// configured. Without one, nothing is entitled and records stay local.
func newGate() license.Gate {
	if cfg.RemoteAPI.BaseURL == "" {
		id := model.Identity{DeviceID: cfg.License.DeviceID, ActivationID: cfg.License.ActivationID}
		return license.NewStaticGate(id, false, 0)
	}
	return license.NewCachedGate(license.NewHTTPGate(cfg), cfg.RemoteAPI.EntitlementCache)
}

func newEngine(records *store.Records) *gradesync.Engine {
	return gradesync.NewEngine(cfg, records, gradesync.NewClient(cfg), newGate())
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
