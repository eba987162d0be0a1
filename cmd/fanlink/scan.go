package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/fanlink/internal/host"
	"github.com/srg/fanlink/pkg/config"
)

type scanFlags struct {
	duration time.Duration
	name     string
	format   string
}

func newScanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Runs one discovery window and lists every peripheral seen, once, in the
order it was first seen. Peripherals that never advertised a name are listed
as "Unknown Device".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, f)
		},
	}
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	cmd.Flags().StringVar(&f.name, "name", "", "Only list devices with this name (case-insensitive)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (table, json)")
	return cmd
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
	e, err := newEnv(cmd, func(cfg *config.Config) {
		if f.duration > 0 {
			cfg.ScanDuration = f.duration
		}
		if f.name != "" {
			cfg.NameFilter = f.name
		}
		if f.format != "" {
			cfg.OutputFormat = f.format
		}
	})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", e.cfg.ScanDuration, "Processing results")
	progress.Start()
	devices, err := e.host.Scan(ctx, progress.Callback())
	progress.Stop()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if e.cfg.OutputFormat == config.FormatJSON {
		return displayDevicesJSON(out, devices)
	}
	return displayDevicesTable(out, devices)
}

func displayDevicesTable(out io.Writer, devices []host.DeviceResult) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS")
	for _, d := range devices {
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\n", name, d.ID)
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []host.DeviceResult) error {
	if devices == nil {
		devices = []host.DeviceResult{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
