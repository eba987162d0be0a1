package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fanlink",
		Short: "Control a BLE fan controller",
		Long: `fanlink drives a single Bluetooth Low Energy peripheral session:

- Scan for nearby peripherals
- Connect, discover services and pick the first writable characteristic
- Send raw data or fan commands (on, off, low, medium, high, 0-100)
- Serve a JSON line protocol on stdin/stdout or over a PTY`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		// main prints clean errors itself
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Verbose output (same as --log-level=debug)")
	flags.String("config", "", "Config file (default $HOME/.config/fanlink/config.yaml when present)")
	flags.String("adapter", "", "Bluetooth adapter, e.g. hci1 (Linux only)")
	flags.String("service-uuid", "", "Service holding the write target, when the device exposes it")
	flags.String("characteristic-uuid", "", "Characteristic to write to, when the device exposes it")
	root.Flags().BoolP("version", "v", false, "Show version information")

	root.AddCommand(newScanCmd(), newSendCmd(), newFanCmd(), newShellCmd(), newBridgeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
