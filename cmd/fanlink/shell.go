package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/fanlink/internal/shell"
	"golang.org/x/term"
)

const shellPrompt = "fanlink> "

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Serve the JSON line protocol on stdin/stdout",
		Long: `Reads one command per line and answers each with one JSON line:

  scan                       {"ok":true,"result":[{"id":"...","name":"..."}]}
  connect <id>               {"ok":true,"result":true}
  send <id> <data>           {"ok":true,"result":true}
  fan <id> <command>         {"ok":true,"result":true}
  disconnect [id]            {"ok":true,"result":true}
  status | history | help
  quit

Failures answer {"ok":false,"code":"...","message":"..."}. A prompt is shown
when stdin is a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			in := cmd.InOrStdin()
			opts := &shell.ServeOptions{}
			if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				opts.Prompt = shellPrompt
			}
			return shell.NewExecutor(e.host, e.logger).Serve(ctx, in, cmd.OutOrStdout(), opts)
		},
	}
}
