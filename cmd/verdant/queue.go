package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuemby/verdant/pkg/reconciler"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and replay queued remote writes",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.db.ListQueue()
		if err != nil {
			return fmt.Errorf("failed to list queue: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOPERATION\tENTITY\tATTEMPTS\tQUEUED\tLAST ERROR")
		for _, item := range items {
			entity := item.Kind
			if item.EntityID != "" {
				entity += "/" + item.EntityID
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				item.ID, item.Type, entity, item.Attempts,
				item.CreatedAt.Format("2006-01-02 15:04:05"), item.LastError)
		}
		return w.Flush()
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Replay queued writes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.rec.ProcessQueue(cmd.Context())
		if err != nil {
			return err
		}
		printQueueResult(res)
		return nil
	},
}

func printQueueResult(res reconciler.Result) {
	if res.Processed == 0 && res.Remaining == 0 {
		fmt.Println("✓ Queue is empty")
		return
	}
	fmt.Printf("Replayed %d queued writes: %d succeeded, %d failed, %d dropped\n",
		res.Processed, res.Succeeded, res.Failed, res.Dropped)
	if res.Skipped > 0 {
		fmt.Printf("%d writes belong to another account and were left queued\n", res.Skipped)
	}
	if res.Halted {
		fmt.Println("⚠ Stopped early: remote unreachable or no session")
	}
	if res.Remaining > 0 {
		fmt.Printf("%d writes still queued\n", res.Remaining)
	}
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
}
