package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfuse/quantfuse/internal/persistence/postgres"
	"github.com/quantfuse/quantfuse/internal/pipeline"
	"github.com/quantfuse/quantfuse/internal/strategy"
	"github.com/quantfuse/quantfuse/internal/validate"
)

func validateCmd(ctx context.Context) *cobra.Command {
	var (
		dataPath    string
		symbol      string
		stratArg    string
		walkForward bool
		store       bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a strategy for overfitting with a train/test split",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(dataPath, "data"); err != nil {
				return err
			}
			defer timedRun("validate")()

			data, err := pipeline.LoadCSV(dataPath, symbolOrDefault(symbol))
			if err != nil {
				return err
			}

			if walkForward {
				factory := func() (strategy.Strategy, error) { return buildStrategy(stratArg, appCfg) }
				result, err := pipeline.RunWalkForward(ctx, factory, data, appCfg.Pipeline, appCfg.WalkForward)
				recordRun(stratArg, err)
				if err != nil {
					return err
				}
				log.Info().
					Int("windows", len(result.Windows)).
					Float64("confidence", result.ConfidenceScore).
					Msg("walk-forward complete")
				return writeJSON(result)
			}

			strat, err := buildStrategy(stratArg, appCfg)
			if err != nil {
				return err
			}
			report, err := pipeline.RunValidation(ctx, strat, data, appCfg.Pipeline)
			recordRun(stratArg, err)
			if err != nil {
				return err
			}
			if metrics != nil {
				metrics.ValidationRuns.WithLabelValues(string(report.Overfitting.Level)).Inc()
			}
			log.Info().
				Str("overfit_level", string(report.Overfitting.Level)).
				Float64("sharpe_drop", report.Overfitting.SharpeDrop).
				Msg("validation complete")

			if store {
				if err := persistValidation(ctx, stratArg, symbolOrDefault(symbol), report); err != nil {
					return err
				}
			}
			return writeJSON(report)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "path to CSV bar file")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol label for the series")
	cmd.Flags().StringVar(&stratArg, "strategy", "crossover", "strategy to validate")
	cmd.Flags().BoolVar(&walkForward, "walk-forward", false, "use rolling walk-forward windows")
	cmd.Flags().BoolVar(&store, "store", false, "persist the report to postgres")
	return cmd
}

func persistValidation(ctx context.Context, strategy, symbol string, report *validate.Report) error {
	if appCfg.Postgres.DSN == "" {
		return fmt.Errorf("--store requires postgres.dsn in config")
	}
	db, err := postgres.Connect(ctx, appCfg.Postgres.DSN, appCfg.Postgres.MaxOpenConns, appCfg.Postgres.ConnTimeout)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveValidation(ctx, strategy, symbol, report); err != nil {
		return err
	}
	log.Info().Str("run_id", report.RunID).Msg("validation report stored")
	return nil
}
