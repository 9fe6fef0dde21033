package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/sniffer/internal/engine"
)

// transition is one capture run-state command.
type transition struct {
	use   string
	short string
	long  string
	done  string
	call  func(ControlClient, context.Context) (engine.Status, error)
}

var transitions = []transition{
	{
		use:   "start",
		short: "Start capturing",
		long: `Start capturing on the selected device. Valid from the initial and
paused states; starting a running capture is a no-op. A stopped capture cannot
be restarted without restarting the daemon.`,
		done: "Capture started",
		call: ControlClient.Start,
	},
	{
		use:   "pause",
		short: "Pause capturing",
		long:  `Pause a running capture. Accumulated statistics are kept.`,
		done:  "Capture paused",
		call:  ControlClient.Pause,
	},
	{
		use:   "resume",
		short: "Resume a paused capture",
		long:  `Resume a paused capture on the currently selected device.`,
		done:  "Capture resumed",
		call:  ControlClient.Resume,
	},
	{
		use:   "stop",
		short: "Stop capturing permanently",
		long: `Stop capturing. Stopped is terminal: the capture cannot be started
again until the daemon restarts. Statistics remain readable.`,
		done: "Capture stopped",
		call: ControlClient.Stop,
	},
}

func init() {
	for _, tr := range transitions {
		rootCmd.AddCommand(newTransitionCmd(tr))
	}
}

func newTransitionCmd(tr transition) *cobra.Command {
	return &cobra.Command{
		Use:   tr.use,
		Short: tr.short,
		Long:  tr.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd.Context(), cli, tr, cmd.OutOrStdout())
		},
	}
}

func runTransition(ctx context.Context, client ControlClient, tr transition, out io.Writer) error {
	st, err := tr.call(client, ctx)
	if err != nil {
		return fmt.Errorf("failed to %s capture: %w", tr.use, err)
	}
	fmt.Fprintf(out, "✓ %s (state: %s, device: %s)\n", tr.done, st.State, deviceOrNone(st.Device))
	return nil
}

func deviceOrNone(name string) string {
	if name == "" {
		return "none"
	}
	return name
}
