package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/sniffer/internal/command"
	"firestige.xyz/sniffer/internal/filter"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Show or change the packet filters",
	Long: `Show the active filters, or change them with flags.

Only the flags given are changed. Each accepts "any" to clear it.

Examples:
  sniffer filter
  sniffer filter --ip ipv4 --transport tcp
  sniffer filter --app HTTPS
  sniffer filter --ip any --transport any --app any`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var params command.FilterSetParams
		if cmd.Flags().Changed("ip") {
			params.IP = &filterIP
		}
		if cmd.Flags().Changed("transport") {
			params.Transport = &filterTransport
		}
		if cmd.Flags().Changed("app") {
			params.Application = &filterApp
		}
		return runFilter(cmd.Context(), cli, params, cmd.OutOrStdout())
	},
}

var (
	filterIP        string
	filterTransport string
	filterApp       string
)

func init() {
	filterCmd.Flags().StringVar(&filterIP, "ip", "", "IP version filter: any, ipv4, ipv6")
	filterCmd.Flags().StringVar(&filterTransport, "transport", "", "transport filter: any, tcp, udp")
	filterCmd.Flags().StringVar(&filterApp, "app", "", "application protocol filter: any, HTTP, DNS, ...")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(ctx context.Context, client ControlClient, params command.FilterSetParams, out io.Writer) error {
	if params.IP == nil && params.Transport == nil && params.Application == nil {
		f, err := client.Filters(ctx)
		if err != nil {
			return fmt.Errorf("failed to get filters: %w", err)
		}
		printFilters(out, f)
		return nil
	}

	f, err := client.SetFilters(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to set filters: %w", err)
	}
	fmt.Fprintln(out, "✓ Filters updated")
	printFilters(out, f)
	return nil
}

func printFilters(out io.Writer, f filter.Filters) {
	fmt.Fprintf(out, "ip:          %s\n", f.IP)
	fmt.Fprintf(out, "transport:   %s\n", f.Transport)
	fmt.Fprintf(out, "application: %s\n", f.App)
}
