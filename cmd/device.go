package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Long:  `List the network interfaces the daemon can capture on. The selected one is marked with '*'.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevices(cmd.Context(), cli, cmd.OutOrStdout())
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <device>",
	Short: "Select the capture device",
	Long: `Select the interface to capture on. While capturing, the running
capture moves to the new interface within one read timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelect(cmd.Context(), cli, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(selectCmd)
}

func runDevices(ctx context.Context, client ControlClient, out io.Writer) error {
	res, err := client.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(res.Devices) == 0 {
		fmt.Fprintln(out, "No capture devices found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tADDRESSES\tDESCRIPTION")
	for _, d := range res.Devices {
		mark := ""
		if d.Name == res.Selected {
			mark = "*"
		}
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			addrs = append(addrs, a.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, d.Name, strings.Join(addrs, ","), d.Description)
	}
	return tw.Flush()
}

func runSelect(ctx context.Context, client ControlClient, name string, out io.Writer) error {
	if err := client.SelectDevice(ctx, name); err != nil {
		return fmt.Errorf("failed to select device %s: %w", name, err)
	}
	fmt.Fprintf(out, "✓ Device %s selected\n", name)
	return nil
}
