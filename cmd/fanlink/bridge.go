package main

import (
	"github.com/spf13/cobra"
	"github.com/srg/fanlink/internal/ptyio"
	"github.com/srg/fanlink/internal/shell"
)

func newBridgeCmd() *cobra.Command {
	var symlink string
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve the JSON line protocol over a PTY",
		Long: `Creates a pseudo-terminal and serves the same line protocol as 'fanlink shell'
on it, so serial-port tools and scripts can drive the session. Responses end
with CRLF. Runs until interrupted.

Example:
  fanlink bridge --symlink /tmp/fan
  screen /tmp/fan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			pty, err := ptyio.Open(&ptyio.Options{
				Symlink: symlink,
				Logger:  e.logger,
				OnError: func(err error) {
					e.logger.WithError(err).Error("PTY failed, stopping bridge")
					cancel()
				},
			})
			if err != nil {
				return err
			}
			defer pty.Close()

			out := cmd.OutOrStdout()
			okColor.Fprintf(out, "Bridge running on %s\n", pty.TTYName())
			if pty.Symlink() != "" {
				infoColor.Fprintf(out, "Symlink: %s\n", pty.Symlink())
			}
			infoColor.Fprintln(out, "Press Ctrl+C to stop")

			// The PTY outlives its clients, so quit does not stop the bridge.
			return shell.NewExecutor(e.host, e.logger).Serve(ctx, pty, pty, &shell.ServeOptions{
				LineEnding: "\r\n",
				KeepAlive:  true,
			})
		},
	}
	cmd.Flags().StringVar(&symlink, "symlink", "", "Create a symlink to the PTY device (e.g. /tmp/fan)")
	return cmd
}
