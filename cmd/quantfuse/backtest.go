package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfuse/quantfuse/internal/persistence/postgres"
	"github.com/quantfuse/quantfuse/internal/pipeline"
)

func backtestCmd(ctx context.Context) *cobra.Command {
	var (
		dataPath string
		symbol   string
		stratArg string
		store    bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a single backtest over a CSV bar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(dataPath, "data"); err != nil {
				return err
			}
			defer timedRun("backtest")()

			data, err := pipeline.LoadCSV(dataPath, symbolOrDefault(symbol))
			if err != nil {
				return err
			}
			strat, err := buildStrategy(stratArg, appCfg)
			if err != nil {
				return err
			}

			result, err := pipeline.RunBacktest(ctx, strat, data, appCfg.Pipeline)
			recordRun(stratArg, err)
			if err != nil {
				return err
			}
			if metrics != nil {
				for _, t := range result.Ledger.Trades {
					metrics.TradesRecorded.WithLabelValues(string(t.ExitReason)).Inc()
				}
			}

			if store {
				if err := persistBacktest(ctx, symbolOrDefault(symbol), result); err != nil {
					return err
				}
			}
			return writeJSON(result)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "path to CSV bar file")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol label for the series")
	cmd.Flags().StringVar(&stratArg, "strategy", "crossover", "strategy to run")
	cmd.Flags().BoolVar(&store, "store", false, "persist the report to postgres")
	return cmd
}

func persistBacktest(ctx context.Context, symbol string, result *pipeline.BacktestResult) error {
	if appCfg.Postgres.DSN == "" {
		return fmt.Errorf("--store requires postgres.dsn in config")
	}
	db, err := postgres.Connect(ctx, appCfg.Postgres.DSN, appCfg.Postgres.MaxOpenConns, appCfg.Postgres.ConnTimeout)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveBacktest(ctx, symbol, result); err != nil {
		return err
	}
	log.Info().Str("run_id", result.RunID).Msg("backtest report stored")
	return nil
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
