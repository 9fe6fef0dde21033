package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the sniffer daemon for its overall status.

Shows: PID, uptime, run state, selected device, active filters and the
last capture error, if any.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), cli, statusOutput, cmd.OutOrStdout())
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the daemon down",
	Long: `Shut the daemon down gracefully.

The daemon stops capturing, writes a final report, closes its sinks and
removes its socket and PID file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShutdown(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

var statusOutput string

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", formatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(shutdownCmd)
}

func runStatus(ctx context.Context, client ControlClient, format string, out io.Writer) error {
	if err := validFormat(format); err != nil {
		return err
	}
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query daemon status: %w", err)
	}
	if format != formatTable {
		return writeStructured(out, format, st)
	}

	e := st.Engine
	fmt.Fprintf(out, "pid:       %d\n", st.PID)
	fmt.Fprintf(out, "uptime:    %s\n", st.Uptime)
	fmt.Fprintf(out, "state:     %s\n", e.State)
	fmt.Fprintf(out, "device:    %s\n", deviceOrNone(e.Device))
	fmt.Fprintf(out, "filters:   %s\n", e.Filters)
	if e.Capturing {
		fmt.Fprintf(out, "capturing: yes (session %s, %s)\n", e.SessionID, e.Uptime)
	} else {
		fmt.Fprintln(out, "capturing: no")
	}
	if e.LastError != "" {
		fmt.Fprintf(out, "error:     %s\n", e.LastError)
	}
	return nil
}

func runShutdown(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down daemon: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon shutdown initiated")
	return nil
}
