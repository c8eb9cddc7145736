package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/regbus/internal/dbus"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client.Status()
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Theme category operations",
}

var themeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the configured theme defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.ResetTheme()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, themeCmd)
	themeCmd.AddCommand(themeResetCmd)
}

// printStatus writes a short human-readable status report.
func printStatus(w io.Writer, st dbus.Status) {
	fmt.Fprintf(w, "State:      %s\n", st.State)
	if st.StartedAt.Unix() > 0 {
		fmt.Fprintf(w, "Started:    %s (%s)\n", humanize.Time(st.StartedAt), st.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Categories: %s\n", humanize.Comma(int64(st.Categories)))
}
