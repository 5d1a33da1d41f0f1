package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/backend"
	"github.com/2lambda123/facebook-prophet/internal/config"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available inference backends",
	Args:  cobra.NoArgs,
	RunE:  runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	settings, err := config.Current()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tDEFAULT\tINSTALLED\tDETAIL")
	fmt.Fprintln(writer, "----\t-------\t---------\t------")

	for _, name := range backend.Names() {
		isDefault := ""
		if name == settings.Defaults.Backend {
			isDefault = "*"
		}
		installed, detail := "yes", ""
		if _, err := backend.New(name, settings.BackendConfig(logger)); err != nil {
			installed, detail = "no", err.Error()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", name, isDefault, installed, detail)
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Println("")
	fmt.Println("Usage: prophet fit <input.json> --backend <name>")
	return nil
}
