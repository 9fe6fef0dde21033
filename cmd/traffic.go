package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/sniffer/internal/report"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset traffic statistics",
	Long:  `Clear every counter and connection aggregate. The run state is unchanged.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReset(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show traffic statistics",
	Long: `Show the live traffic statistics: packet counters, the application
protocol mix and the busiest connections.

Examples:
  sniffer stats
  sniffer stats --limit 10
  sniffer stats -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context(), cli, statsLimit, statsOutput, cmd.OutOrStdout())
	},
}

var (
	statsLimit  int
	statsOutput string
)

func init() {
	statsCmd.Flags().IntVarP(&statsLimit, "limit", "n", 20, "maximum connections to show (0 = all)")
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", formatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statsCmd)
}

func runReset(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset statistics: %w", err)
	}
	fmt.Fprintln(out, "✓ Traffic statistics reset")
	return nil
}

func runStats(ctx context.Context, client ControlClient, limit int, format string, out io.Writer) error {
	if err := validFormat(format); err != nil {
		return err
	}
	snap, err := client.Snapshot(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	if format != formatTable {
		return writeStructured(out, format, snap)
	}

	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query status: %w", err)
	}
	header := report.Header{
		GeneratedAt: time.Now(),
		Device:      st.Engine.Device,
		State:       st.Engine.DisplayState(),
		Error:       st.Engine.LastError,
	}
	_, err = io.WriteString(out, report.Render(header, snap, report.Options{}))
	return err
}
