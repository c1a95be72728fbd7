package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and a summary of the local data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		state := a.ctrl.SyncState()
		sample := a.ctrl.MetricsSample()
		stats := a.ctrl.Stats()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Data directory:\t%s\n", a.cfg.DataDir)
		fmt.Fprintf(w, "Remote driver:\t%s\n", a.cfg.Remote.Driver)
		if id := a.sync.UserID(); id != "" {
			fmt.Fprintf(w, "User:\t%s\n", id)
		}
		fmt.Fprintf(w, "Sync status:\t%s\n", state.Status)
		if state.Error != "" {
			fmt.Fprintf(w, "Last error:\t%s\n", state.Error)
		}
		if !state.LastSync.IsZero() {
			fmt.Fprintf(w, "Last sync:\t%s\n", state.LastSync.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(w, "Queued writes:\t%d\n", sample.QueueDepth)
		fmt.Fprintf(w, "Unsynced entities:\t%d\n", sample.DirtyEntities)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Goals:\t%d\n", stats.TotalGoals)
		fmt.Fprintf(w, "Completion:\t%.0f%%\n", stats.CompletionRate)
		fmt.Fprintf(w, "Streak:\t%d (best %d)\n", stats.Streak, stats.BestStreak)
		fmt.Fprintf(w, "Open brain dump:\t%d\n", stats.OpenBrainDump)

		if recent := a.errors.Recent(); len(recent) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Recent errors:")
			for _, e := range recent {
				fmt.Fprintf(w, "  %s\t%s/%s\t%s\n", e.Time.Format("15:04:05"), e.Category, e.Severity, e.Message)
			}
		}
		return w.Flush()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local data as a backup file",
	Long: `Export the current snapshot as a JSON backup.

Examples:
  # Write a backup file
  verdant export -o verdant-backup.json

  # Print to stdout
  verdant export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.ctrl.Export()
		if err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}

		if output == "" || output == "-" {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		fmt.Printf("✓ Exported to %s\n", output)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a backup file",
	Long: `Import a JSON backup produced by export.

Invalid parts of the backup are dropped and reported; everything that
validates is kept. The result replaces the local snapshot and is uploaded
when a remote is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.ctrl.Import(cmd.Context(), raw)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Imported %d goals\n", res.GoalsImported)
		if res.Salvaged {
			fmt.Printf("⚠ Backup had errors, %d items dropped:\n", res.Dropped)
			for _, e := range res.Errors {
				if e.Index >= 0 {
					fmt.Printf("  %s[%d]:\n", e.Field, e.Index)
				} else {
					fmt.Printf("  %s:\n", e.Field)
				}
				for _, m := range e.Messages {
					fmt.Printf("    %s\n", m)
				}
			}
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull the remote snapshot and replay queued writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.backend == nil {
			return fmt.Errorf("no remote configured (remote.driver is %q)", a.cfg.Remote.Driver)
		}

		if err := a.ctrl.ForceSync(cmd.Context()); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Println("✓ Pulled remote snapshot")

		res, err := a.rec.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		printQueueResult(res)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	importCmd.Flags().StringP("file", "f", "", "Backup file to import (required)")
	_ = importCmd.MarkFlagRequired("file")
}
