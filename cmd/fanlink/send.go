package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/fanlink/pkg/config"
)

type sendFlags struct {
	hex     bool
	timeout time.Duration
}

func newSendCmd() *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send <device-address> <data>",
		Short: "Send data to the first writable characteristic of a device",
		Long: `Connects to the device, waits for service discovery, writes the data to the
first characteristic that supports write requests and disconnects.

Example:
  fanlink send AA:BB:CC:DD:EE:FF '{"speed":50}'
  fanlink send --hex AA:BB:CC:DD:EE:FF 7b7d`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, f, args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&f.hex, "hex", false, "Treat data as hex-encoded bytes")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 0, "Connect timeout (default from config, 30s)")
	return cmd
}

func runSend(cmd *cobra.Command, f *sendFlags, address, data string) error {
	payload := data
	if f.hex {
		raw, err := hex.DecodeString(strings.ReplaceAll(data, " ", ""))
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
		payload = string(raw)
	}

	e, err := newEnv(cmd, timeoutOverride(f.timeout))
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := e.deliver(ctx, address, payload); err != nil {
		return err
	}
	okColor.Fprintf(cmd.OutOrStdout(), "Sent %d bytes to %s\n", len(payload), address)
	return nil
}

func timeoutOverride(timeout time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		if timeout != 0 {
			cfg.ConnectTimeout = timeout
		}
	}
}
