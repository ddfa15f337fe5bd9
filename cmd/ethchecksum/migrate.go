package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethchecksum/ethchecksum/internal/logging"
	"github.com/ethchecksum/ethchecksum/settings"
)

func migrateSettingsCmd() *cobra.Command {
	var (
		dir         string
		file        string
		fromVersion int
	)

	cmd := &cobra.Command{
		Use:   "migrate-settings",
		Short: "Upgrade persisted settings to the current version",
		Long: `Without --file, load the settings blob under --dir (default SETTINGS_DIR),
migrate it to the current version and write it back.

With --file, read a raw settings object written at --from-version and print
the migrated object without touching any store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return migrateFile(cmd.OutOrStdout(), file, fromVersion)
			}

			if dir == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.SettingsDir
			}
			return migrateDir(cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "settings directory")
	cmd.Flags().StringVar(&file, "file", "", "raw settings JSON file to migrate")
	cmd.Flags().IntVar(&fromVersion, "from-version", 0, "version the --file settings were written at")
	return cmd
}

func migrateDir(out io.Writer, dir string) error {
	kv, err := settings.NewFileKV(dir)
	if err != nil {
		return err
	}
	current, err := settings.NewStore(kv, logging.Logger).Load()
	if err != nil {
		return err
	}
	return writeJSON(out, current)
}

func migrateFile(out io.Writer, path string, version int) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	migrated, err := settings.Migrate(version, blob)
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return writeJSON(out, migrated)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
