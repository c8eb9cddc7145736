package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/regbus/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list [category]",
	Short: "List categories, or the keys of one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			names []string
			err   error
		)
		if len(args) == 1 {
			names, err = client.Keys(args[0])
		} else {
			names, err = client.List()
		}
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var getOpts struct {
	format string
}

var getCmd = &cobra.Command{
	Use:   "get <category> [key]",
	Short: "Print a value, or a whole category",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			v, err := client.Get(args[0], args[1])
			if err != nil {
				return err
			}
			return writeValue(cmd.OutOrStdout(), v, getOpts.format)
		}

		all, err := client.Dump()
		if err != nil {
			return err
		}
		data, ok := categoryData(all, args[0])
		if !ok {
			return fmt.Errorf("category %q not found", args[0])
		}
		return writeValue(cmd.OutOrStdout(), data, getOpts.format)
	},
}

func init() {
	rootCmd.AddCommand(listCmd, getCmd)

	getCmd.Flags().StringVarP(&getOpts.format, "format", "f", formatJSON,
		"Output format (json, yaml)")
}

// categoryData picks one category's data out of a registry dump.
func categoryData(dump registry.Value, name string) (registry.Value, bool) {
	m, ok := dump.AsMapping()
	if !ok {
		return registry.Value{}, false
	}
	data, ok := m[name]
	return data, ok
}
