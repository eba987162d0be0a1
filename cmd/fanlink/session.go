package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/fanlink/internal/device"
	goble "github.com/srg/fanlink/internal/device/go-ble"
	"github.com/srg/fanlink/internal/host"
	"github.com/srg/fanlink/pkg/config"
)

// Radio is a platform radio the CLI owns and closes
type Radio interface {
	device.Radio
	Close() error
}

// openRadio is replaced in tests
var openRadio = func(cfg *config.Config, logger *logrus.Logger) (Radio, error) {
	r, err := goble.NewRadio(&goble.Options{
		AdapterID:            cfg.AdapterID,
		WriteWithoutResponse: cfg.WriteWithoutResponse,
	}, logger)
	if err != nil {
		return nil, err
	}
	return r, nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	infoColor = color.New(color.FgCyan)
)

// env is what every command needs: configuration, logger and a host over an open radio
type env struct {
	cfg    *config.Config
	logger *logrus.Logger
	radio  Radio
	host   *host.Host
}

// loadConfig reads --config (or the optional default file) and applies global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	optional := path == ""
	if optional {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}
	if adapter, _ := cmd.Flags().GetString("adapter"); adapter != "" {
		cfg.AdapterID = adapter
	}
	if uuid, _ := cmd.Flags().GetString("service-uuid"); uuid != "" {
		cfg.ServiceUUID = uuid
	}
	if uuid, _ := cmd.Flags().GetString("characteristic-uuid"); uuid != "" {
		cfg.CharacteristicUUID = uuid
	}
	cfg.NormalizeUUIDs()
	return cfg, nil
}

// newEnv opens the radio; tune may adjust the configuration from command flags first
func newEnv(cmd *cobra.Command, tune func(*config.Config)) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if tune != nil {
		tune(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// Arguments and flags are valid from here on
	cmd.SilenceUsage = true

	radio, err := openRadio(cfg, logger)
	if err != nil {
		return nil, err
	}

	h := host.New(radio, &host.Options{
		ScanDuration:         cfg.ScanDuration,
		ConnectTimeout:       cfg.ConnectTimeout,
		AwaitServices:        cfg.AwaitServices,
		NameFilter:           cfg.NameFilter,
		WriteWithoutResponse: cfg.WriteWithoutResponse,
		ServiceUUID:          cfg.ServiceUUID,
		CharacteristicUUID:   cfg.CharacteristicUUID,
	}, logger)

	return &env{cfg: cfg, logger: logger, radio: radio, host: h}, nil
}

// Close ends any session left open and releases the radio
func (e *env) Close() {
	if _, err := e.host.Disconnect(context.Background(), ""); err != nil && !errors.Is(err, device.ErrNotConnected) {
		e.logger.WithError(err).Debug("Disconnect on exit failed")
	}
	if err := e.radio.Close(); err != nil {
		e.logger.WithError(err).Debug("Failed to close radio")
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// deliver connects to deviceID, sends data and disconnects
func (e *env) deliver(ctx context.Context, deviceID, data string) error {
	log := e.logger.WithField("address", deviceID)

	log.Info("Connecting...")
	if _, err := e.host.ConnectToDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", deviceID, err)
	}
	if _, err := e.host.SendData(ctx, deviceID, data); err != nil {
		return fmt.Errorf("failed to send to %s: %w", deviceID, err)
	}
	if _, err := e.host.Disconnect(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", deviceID, err)
	}
	log.WithField("bytes", len(data)).Info("Data delivered")
	return nil
}
