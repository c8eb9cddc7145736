package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/regbus/internal/registry"
)

var setOpts struct {
	raw bool
}

var setCmd = &cobra.Command{
	Use:   "set <category> <key> <value>",
	Short: "Store a value, creating the category if needed",
	Long: `Store a value in a category.

The value is parsed as JSON. Anything that is not valid JSON is stored
as a string, so "regbus set layout mode tiled" works without quoting.
Use --raw to always store the argument as a string.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := parseValue(args[2], setOpts.raw)
		if err := client.Set(args[0], args[1], v); err != nil {
			return err
		}
		logger.Debug("value set", "category", args[0], "key", args[1], "kind", v.Kind())
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <category> <key>",
	Aliases: []string{"remove"},
	Short:   "Remove a key from a category",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := client.Remove(args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%s.%s: not found", args[0], args[1])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setCmd, rmCmd)

	setCmd.Flags().BoolVar(&setOpts.raw, "raw", false,
		"Store the value as a string without JSON parsing")
}

// parseValue reads a command-line argument as a registry value.
func parseValue(arg string, raw bool) registry.Value {
	if raw {
		return registry.String(arg)
	}
	v, err := registry.ParseJSON(arg)
	if err != nil {
		return registry.String(arg)
	}
	return v
}
