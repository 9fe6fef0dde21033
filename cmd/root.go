// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/sniffer/internal/command"
	"firestige.xyz/sniffer/internal/config"
	"firestige.xyz/sniffer/internal/daemon"
)

var (
	// Global flags
	configFile string
	socketPath string
	rpcTimeout time.Duration

	// cli is the daemon control client shared by the control subcommands.
	cli ControlClient
)

// annotationNoClient marks commands that run without a daemon connection.
const annotationNoClient = "sniffer/no-client"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sniffer",
	Short: "Sniffer - live network traffic capture and aggregation daemon",
	Long: `Sniffer captures packets on a selected interface, classifies them by IP
version, transport and application protocol, and aggregates per-connection
traffic statistics that are reported periodically.

The daemon is controlled locally over a Unix Domain Socket (JSON-RPC 2.0)
and optionally over an HTTP API. Every subcommand except "daemon" and
"validate" talks to a running daemon.`,
	Version:           daemon.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: connectClient,
	PersistentPostRun: closeClient,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/sniffer/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "",
		"daemon socket path (default: control.socket from the config file)")
	rootCmd.PersistentFlags().DurationVar(&rpcTimeout, "timeout", 10*time.Second,
		"control request timeout")
}

// connectClient creates the UDS client unless the command runs standalone
// or a client was injected.
func connectClient(cmd *cobra.Command, args []string) error {
	if _, ok := cmd.Annotations[annotationNoClient]; ok {
		return nil
	}
	if cli != nil {
		return nil
	}
	cli = command.NewUDSClient(resolveSocket(), rpcTimeout)
	return nil
}

func closeClient(cmd *cobra.Command, args []string) {
	if cli != nil {
		cli.Close()
	}
}

// resolveSocket prefers the --socket flag, then the config file, then the
// built-in default.
func resolveSocket() string {
	if socketPath != "" {
		return socketPath
	}
	if cfg, err := config.Load(configFile); err == nil && cfg.Control.Socket != "" {
		return cfg.Control.Socket
	}
	return "/var/run/sniffer.sock"
}

// SetClient injects the control client, used by tests.
func SetClient(c ControlClient) {
	cli = c
}

// GetClient returns the current control client.
func GetClient() ControlClient {
	return cli
}
