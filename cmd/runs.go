package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/runs"
)

var runsCleanRemove bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the fit and sampling history",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a run from the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Mark runs whose process exited as stale",
	Args:  cobra.NoArgs,
	RunE:  runRunsClean,
}

func init() {
	runsCleanCmd.Flags().BoolVar(&runsCleanRemove, "remove", false, "Remove stale runs instead of marking them")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsCleanCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	_, _ = runs.CleanupStale(runs.CleanupMark)

	history, err := runs.List()
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No runs found")
		fmt.Println("Fit a model with: prophet fit <input.json>")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tBACKEND\tOPERATION\tSTATUS\tSTARTED\tDURATION")
	fmt.Fprintln(writer, "--\t-------\t---------\t------\t-------\t--------")
	for _, run := range history {
		duration := "-"
		if !run.FinishedAt.IsZero() {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Backend, run.Operation, run.Status,
			run.StartedAt.Local().Format(time.DateTime), duration)
	}
	return writer.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	run, found, err := runs.Get(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("run not found: %s", args[0])
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	if err := runs.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted run: %s\n", args[0])
	return nil
}

func runRunsClean(cmd *cobra.Command, args []string) error {
	mode := runs.CleanupMark
	if runsCleanRemove {
		mode = runs.CleanupRemove
	}

	cleaned, err := runs.CleanupStale(mode)
	if err != nil {
		return err
	}
	if len(cleaned) == 0 {
		fmt.Println("No stale runs")
		return nil
	}
	for _, id := range cleaned {
		fmt.Printf("Cleaned run: %s\n", id)
	}
	return nil
}
