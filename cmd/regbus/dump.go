package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/regbus/internal/registry"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var dumpOpts struct {
	format string
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the whole registry",
	Long: `Print every category as {category: {key: value}}.

Use --format yaml for a human-readable listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := client.Dump()
		if err != nil {
			return err
		}
		return writeValue(cmd.OutOrStdout(), v, dumpOpts.format)
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpOpts.format, "format", "f", formatJSON,
		"Output format (json, yaml)")
}

// writeValue renders v in the requested format.
func writeValue(w io.Writer, v registry.Value, format string) error {
	switch format {
	case formatJSON:
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
