package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/sniffer/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a daemon configuration file",
	Long: `Validate a daemon configuration file without starting the daemon.

The file defaults to the --config flag. Defaults and SNIFFER_* environment
overrides are applied exactly as the daemon would apply them.

Examples:
  sniffer validate
  sniffer validate /etc/sniffer/config.yml`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{annotationNoClient: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) == 1 {
			path = args[0]
		}
		return runValidate(path, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	device := cfg.Capture.Device
	if device == "" {
		device = "(none)"
	}
	fmt.Fprintf(out, "VALID: %s\n", path)
	fmt.Fprintf(out, "  capture: device=%s source=%s snap_len=%d\n", device, cfg.Capture.Source, cfg.Capture.SnapLen)
	fmt.Fprintf(out, "  filters: ip=%s transport=%s application=%s\n",
		cfg.Filters.IP, cfg.Filters.Transport, cfg.Filters.Application)
	fmt.Fprintf(out, "  report:  every %s to %s\n", cfg.Report.Interval, strings.Join(cfg.Report.Sinks, ","))
	fmt.Fprintf(out, "  control: %s\n", cfg.Control.Socket)
	return nil
}
