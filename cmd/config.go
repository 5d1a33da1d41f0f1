package cmd

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration values",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration files in use",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}

// configKeyArg trims the key argument and rejects an empty one.
func configKeyArg(args []string) (string, error) {
	key := strings.TrimSpace(args[0])
	if key == "" {
		return "", errors.New("config key is required")
	}
	return key, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key, err := configKeyArg(args)
	if err != nil {
		return err
	}
	value, ok := config.GetConfig(key)
	if !ok {
		return fmt.Errorf("config key not found: %s", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, err := configKeyArg(args)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(args[1])
	if value == "" {
		return errors.New("config value is required")
	}
	if err := config.SetConfig(key, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s\n", config.CurrentPaths().Global, key)
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	items, err := config.ListConfig()
	if err != nil {
		return err
	}
	keys := maps.Keys(items)
	out := cmd.OutOrStdout()
	for _, key := range slices.Sorted(keys) {
		fmt.Fprintf(out, "%s=%s\n", key, items[key])
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths := config.CurrentPaths()
	out := cmd.OutOrStdout()
	for _, entry := range [][2]string{
		{"default", paths.Default},
		{"global", paths.Global},
		{"project", paths.Project},
	} {
		path := entry[1]
		if path == "" {
			path = "(none)"
		}
		fmt.Fprintf(out, "%s=%s\n", entry[0], path)
	}
	return nil
}
