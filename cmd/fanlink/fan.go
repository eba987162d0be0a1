package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/fanlink/internal/fan"
	"github.com/srg/fanlink/pkg/config"
)

func newFanCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fan <device-address> <on|off|low|medium|high|0-100>",
		Short: "Send a fan command",
		Long: `Encodes a fan command for the controller firmware and sends it:

  on, off              {"power":true} / {"power":false}
  low, medium, high    {"speed":33} / {"speed":66} / {"speed":100}
  0-100 (or 50%)       {"speed":N}
  1, 0                 legacy single-byte on/off`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := fan.Parse(args[1])
			if err != nil {
				return err
			}

			e, err := newEnv(cmd, func(cfg *config.Config) {
				timeoutOverride(timeout)(cfg)
				// the controller's control point, unless the user pinned another target
				if cfg.ServiceUUID == "" && cfg.CharacteristicUUID == "" {
					cfg.ServiceUUID, cfg.CharacteristicUUID = fan.ServiceUUID, fan.ControlUUID
					cfg.NormalizeUUIDs()
				}
			})
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := signalContext(cmd)
			defer cancel()

			if err := e.deliver(ctx, args[0], command.Payload()); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Fan %s: %s\n", args[0], command)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Connect timeout (default from config, 30s)")
	return cmd
}
