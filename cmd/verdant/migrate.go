package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/verdant/pkg/datastore"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/types"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the local snapshot to the current schema version",
	Long: `Upgrade the local snapshot to the current schema version and fill in
missing fields with defaults.

The database is backed up before any change unless --dry-run is set. The
remote is never contacted.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
	migrateCmd.Flags().String("backup", "", "Backup path (default: <data-dir>/verdant.db.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.WithComponent("migrate")

	dbPath := filepath.Join(cfg.DataDir, storage.DBFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Dry run: %v\n", dryRun)

	// Create backup unless in dry-run mode
	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		if err := copyFile(dbPath, backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		fmt.Printf("✓ Backup created: %s\n", backupPath)
	}

	db, err := storage.NewBoltStore(cfg.DataDir, cfg.StorageKey)
	if err != nil {
		return err
	}
	defer db.Close()

	data, err := db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if data == nil {
		fmt.Println("✓ No snapshot found, nothing to migrate")
		return nil
	}

	from := data.Version
	migrated := datastore.Migrate(data)
	repaired := datastore.EnsureShape(data, time.Now())

	if !migrated && !repaired {
		fmt.Printf("✓ Snapshot is already at version %d\n", types.CurrentVersion)
		return nil
	}

	logger.Info().
		Int("from", from).
		Int("to", data.Version).
		Bool("repaired", repaired).
		Int("goals", len(data.Goals)).
		Msg("Snapshot migration planned")

	if dryRun {
		fmt.Println("\n[DRY RUN] Would perform the following operations:")
		if migrated {
			fmt.Printf("  Upgrade schema from version %d to %d\n", from, data.Version)
		}
		if repaired {
			fmt.Println("  Fill missing fields with defaults")
		}
		fmt.Println("\nRun without --dry-run to perform the migration.")
		return nil
	}

	if err := db.SaveSnapshot(data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	fmt.Printf("\n✓ Migrated snapshot from version %d to %d\n", from, data.Version)
	fmt.Println("The remote copy is updated on the next sync.")
	return nil
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
