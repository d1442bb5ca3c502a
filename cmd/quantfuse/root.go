package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfuse/quantfuse/internal/config"
	"github.com/quantfuse/quantfuse/internal/telemetry"
)

var (
	cfgPath string
	appCfg  config.App
	metrics *telemetry.Registry
)

// Execute runs the root command.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "quantfuse",
		Short:        "Signal-fusion backtesting and validation engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			appCfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			applyLogging(appCfg.Logging)
			if appCfg.Telemetry.Enabled {
				metrics = telemetry.NewRegistry()
				go func() {
					if err := telemetry.Serve(appCfg.Telemetry.ListenAddr); err != nil {
						log.Warn().Err(err).Msg("metrics server stopped")
					}
				}()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(backtestCmd(ctx))
	root.AddCommand(optimizeCmd(ctx))
	root.AddCommand(validateCmd(ctx))

	return root.ExecuteContext(ctx)
}

func applyLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func recordRun(strategy string, err error) {
	if metrics == nil {
		return
	}
	metrics.BacktestsTotal.WithLabelValues(strategy).Inc()
	if err != nil {
		metrics.BacktestErrors.WithLabelValues(strategy).Inc()
	}
}

func timedRun(mode string) func() {
	if metrics == nil {
		return func() {}
	}
	timer := metrics.StartRun(mode)
	return timer.Stop
}

func symbolOrDefault(symbol string) string {
	if symbol == "" {
		return "UNKNOWN"
	}
	return symbol
}

func requireFlag(value, name string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
