package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfuse/quantfuse/internal/optimize"
	"github.com/quantfuse/quantfuse/internal/persistence/postgres"
	"github.com/quantfuse/quantfuse/internal/pipeline"
)

func optimizeCmd(ctx context.Context) *cobra.Command {
	var (
		dataPath  string
		symbol    string
		stratArg  string
		params    []string
		topMetric string
		topN      int
		store     bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Grid-search strategy parameters over a CSV bar file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(dataPath, "data"); err != nil {
				return err
			}
			if len(params) == 0 {
				return fmt.Errorf("at least one --param name=min:max:step is required")
			}
			defer timedRun("optimize")()

			data, err := pipeline.LoadCSV(dataPath, symbolOrDefault(symbol))
			if err != nil {
				return err
			}
			factory, err := strategyFactory(stratArg, appCfg)
			if err != nil {
				return err
			}
			grid, err := parseGrid(params)
			if err != nil {
				return err
			}

			cache, cleanup, err := buildCache()
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := pipeline.RunOptimization(ctx, factory, grid, data, appCfg.Pipeline, cache)
			recordRun(stratArg, err)
			if err != nil {
				return err
			}
			if metrics != nil {
				metrics.GridEvaluations.WithLabelValues("ok").Add(float64(len(report.Results)))
				metrics.GridEvaluations.WithLabelValues("failed").Add(float64(len(report.Failed)))
				metrics.CacheHits.Add(float64(report.CacheStats.Hits))
				metrics.CacheMisses.Add(float64(report.CacheStats.Misses))
			}

			log.Info().
				Int("evaluated", report.Evaluated).
				Int("failed", len(report.Failed)).
				Int64("cache_hits", report.CacheStats.Hits).
				Msg("grid search complete")

			if store {
				if err := persistOptimization(ctx, stratArg, symbolOrDefault(symbol), report); err != nil {
					return err
				}
			}
			if topN > 0 {
				return writeJSON(report.TopN(topMetric, topN))
			}
			return writeJSON(report)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "path to CSV bar file")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol label for the series")
	cmd.Flags().StringVar(&stratArg, "strategy", "crossover", "strategy to optimize")
	cmd.Flags().StringArrayVar(&params, "param", nil, "parameter range, name=min:max:step (repeatable)")
	cmd.Flags().StringVar(&topMetric, "top-metric", "performance.sharpe", "flattened metric to rank results by")
	cmd.Flags().IntVar(&topN, "top", 0, "print only the N best results")
	cmd.Flags().BoolVar(&store, "store", false, "persist the report to postgres")
	return cmd
}

// parseGrid converts repeated name=min:max:step flags into a Grid.
func parseGrid(specs []string) (*optimize.Grid, error) {
	ranges := make([]optimize.ParamRange, 0, len(specs))
	for _, spec := range specs {
		name, bounds, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("bad --param %q, want name=min:max:step", spec)
		}
		parts := strings.Split(bounds, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad --param %q, want name=min:max:step", spec)
		}
		vals := make([]float64, 3)
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("bad --param %q: %w", spec, err)
			}
			vals[i] = v
		}
		ranges = append(ranges, optimize.ParamRange{Name: name, Min: vals[0], Max: vals[1], Step: vals[2]})
	}
	return optimize.NewGrid(ranges...)
}

// buildCache returns the configured shared cache, or nil so the optimizer
// uses its in-process cache.
func buildCache() (optimize.ResultCache, func(), error) {
	if appCfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Addr,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	log.Debug().Str("addr", appCfg.Redis.Addr).Msg("using redis result cache")
	return optimize.NewRedisCache(client, "", appCfg.Redis.TTL), func() { client.Close() }, nil
}

func persistOptimization(ctx context.Context, strategy, symbol string, report *optimize.Report) error {
	if appCfg.Postgres.DSN == "" {
		return fmt.Errorf("--store requires postgres.dsn in config")
	}
	db, err := postgres.Connect(ctx, appCfg.Postgres.DSN, appCfg.Postgres.MaxOpenConns, appCfg.Postgres.ConnTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	runID := uuid.NewString()
	if err := db.SaveOptimization(ctx, runID, strategy, symbol, report); err != nil {
		return err
	}
	log.Info().Str("run_id", runID).Msg("optimization report stored")
	return nil
}
