package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/fanlink/pkg/config"
)

// configureLogger creates the command logger. --log-level takes precedence over
// --verbose, which takes precedence over the config file; the default is silent.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	levelName := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		levelName = "debug"
	}
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		levelName = flag
	}

	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
