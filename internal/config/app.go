package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfuse/quantfuse/internal/pipeline"
	"github.com/quantfuse/quantfuse/internal/strategy"
	"github.com/quantfuse/quantfuse/internal/validate"
)

// App is the root configuration for the fusion backtester.
type App struct {
	Pipeline    pipeline.Config            `yaml:"pipeline"`
	WalkForward validate.WalkForwardConfig `yaml:"walk_forward"`
	Strategies  StrategiesConfig           `yaml:"strategies"`
	Redis       RedisConfig                `yaml:"redis"`
	Postgres    PostgresConfig             `yaml:"postgres"`
	Telemetry   TelemetryConfig            `yaml:"telemetry"`
	Logging     LoggingConfig              `yaml:"logging"`
}

// StrategiesConfig holds the per-strategy tuning sections.
type StrategiesConfig struct {
	Crossover   strategy.SMACrossoverConfig      `yaml:"crossover"`
	AltData     strategy.AltDataFusionConfig     `yaml:"alt_data"`
	Correlation strategy.CorrelationRegimeConfig `yaml:"correlation"`
	MacroHedge  strategy.MacroHedgeConfig        `yaml:"macro_hedge"`
}

// RedisConfig configures the optional shared optimizer result cache.
// When Addr is empty the optimizer falls back to its in-process cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig configures the optional report store. When DSN is empty
// reports are not persisted.
type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
}

// TelemetryConfig controls the Prometheus metrics endpoint.
type TelemetryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the full default configuration.
func Default() App {
	return App{
		Pipeline:    pipeline.DefaultConfig(),
		WalkForward: validate.DefaultWalkForwardConfig(),
		Strategies: StrategiesConfig{
			Crossover:   strategy.DefaultSMACrossoverConfig(),
			AltData:     strategy.DefaultAltDataFusionConfig(),
			Correlation: strategy.DefaultCorrelationRegimeConfig(),
			MacroHedge:  strategy.DefaultMacroHedgeConfig(),
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 8,
			ConnTimeout:  5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ListenAddr: ":9187",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file layered over the defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (App, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (a App) Validate() error {
	if err := a.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := a.Strategies.Crossover.Validate(); err != nil {
		return fmt.Errorf("strategies.crossover: %w", err)
	}
	if err := a.Strategies.AltData.Validate(); err != nil {
		return fmt.Errorf("strategies.alt_data: %w", err)
	}
	if err := a.Strategies.Correlation.Validate(); err != nil {
		return fmt.Errorf("strategies.correlation: %w", err)
	}
	if err := a.Strategies.MacroHedge.Validate(); err != nil {
		return fmt.Errorf("strategies.macro_hedge: %w", err)
	}
	if a.Postgres.DSN != "" && a.Postgres.MaxOpenConns <= 0 {
		return fmt.Errorf("postgres: max_open_conns must be positive")
	}
	if a.Telemetry.Enabled && a.Telemetry.ListenAddr == "" {
		return fmt.Errorf("telemetry: listen_addr required when enabled")
	}
	return nil
}
