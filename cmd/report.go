package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the current report",
	Long: `Render the report the daemon would write right now, without waiting
for the next report interval.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context(), cli, reportOutput, cmd.OutOrStdout())
	},
}

var reportOutput string

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", formatTable, "output format: table, json, yaml")
	rootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, client ControlClient, format string, out io.Writer) error {
	if err := validFormat(format); err != nil {
		return err
	}
	res, err := client.Render(ctx)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if format != formatTable {
		return writeStructured(out, format, res.Report)
	}
	_, err = io.WriteString(out, res.Text)
	return err
}
