package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/verdant/pkg/types"
)

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage goals",
}

var goalAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Add a goal",
	Long: `Add a goal to the calendar.

Examples:
  # A focus goal for the current month
  verdant goal add "Ship the beta"

  # A milestone for a given month, pushed to the remote right away
  verdant goal add "Run a half marathon" --level milestone --month 10 --year 2025 --sync`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		priority, _ := cmd.Flags().GetString("priority")
		status, _ := cmd.Flags().GetString("status")
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")
		parent, _ := cmd.Flags().GetString("parent")
		category, _ := cmd.Flags().GetString("category")
		forceSync, _ := cmd.Flags().GetBool("sync")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		now := time.Now()
		if month == 0 {
			month = int(now.Month())
		}
		if year == 0 {
			year = now.Year()
		}

		goal := types.Goal{
			Title:    args[0],
			Level:    types.GoalLevel(level),
			Status:   types.GoalStatus(status),
			Priority: types.Priority(priority),
			Category: category,
			Month:    month - 1,
			Year:     year,
			ParentID: parent,
		}

		save := a.ctrl.SaveGoal
		if forceSync {
			save = a.ctrl.ForceSaveGoal
		}
		saved, err := save(cmd.Context(), goal)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Goal created: %s\n", saved.ID)
		return nil
	},
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		month, _ := cmd.Flags().GetInt("month")
		year, _ := cmd.Flags().GetInt("year")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var goals []types.Goal
		if month > 0 {
			if year == 0 {
				year = time.Now().Year()
			}
			goals = a.ctrl.GoalsForMonth(year, month-1)
		} else {
			goals = a.ctrl.Data().Goals
		}

		if len(goals) == 0 {
			fmt.Println("No goals found")
			return nil
		}

		slices.SortFunc(goals, func(x, y types.Goal) int {
			if c := x.Year - y.Year; c != 0 {
				return c
			}
			if c := x.Month - y.Month; c != 0 {
				return c
			}
			return strings.Compare(x.Title, y.Title)
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMONTH\tLEVEL\tSTATUS\tPRIORITY\tPROGRESS\tTITLE")
		for _, g := range goals {
			fmt.Fprintf(w, "%s\t%04d-%02d\t%s\t%s\t%s\t%d%%\t%s\n",
				shortID(g.ID), g.Year, g.Month+1, g.Level, g.Status, g.Priority, g.Progress, g.Title)
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	goalAddCmd.Flags().String("level", string(types.GoalLevelFocus), "Goal level: vision, milestone, focus, intention")
	goalAddCmd.Flags().String("priority", string(types.PriorityMedium), "Priority: low, medium, high, urgent")
	goalAddCmd.Flags().String("status", string(types.GoalStatusNotStarted), "Status: not-started, in-progress, done, blocked")
	goalAddCmd.Flags().Int("month", 0, "Month 1-12 (default current month)")
	goalAddCmd.Flags().Int("year", 0, "Year (default current year)")
	goalAddCmd.Flags().String("parent", "", "Parent goal ID")
	goalAddCmd.Flags().String("category", "", "Category")
	goalAddCmd.Flags().Bool("sync", false, "Write to the remote immediately instead of after the debounce delay")

	goalListCmd.Flags().Int("month", 0, "Only goals in month 1-12")
	goalListCmd.Flags().Int("year", 0, "Year for --month (default current year)")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalListCmd)
}
