package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/offszn/marketplace/internal"
	"github.com/offszn/marketplace/pkg/logger"
	"github.com/offszn/marketplace/pkg/telemetry"
)

var (
	clearData bool
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "offszn",
	Short: "OFFSZN marketplace",
	Long:  `Marketplace backend: Mercado Pago payment reconciliation, orders and notifications.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*internal.Config, error) {
	// Check if we're running in Docker environment
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		cfg := internal.LoadConfigFromEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("error validating config from environment: %w", err)
		}
		return cfg, nil
	}

	// Load configuration from file (development)
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("ENV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg internal.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}

	return &cfg, nil
}

// bootstrap loads the config and installs the logger and telemetry providers.
func bootstrap(ctx context.Context) (*internal.Config, *slog.Logger, telemetry.ShutdownFunc, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.Env,
		logger.WithLevel(cfg.Observability.Logging.Level),
		logger.WithFormat(cfg.Observability.Logging.Format),
	)
	lg := logger.LoggerWrapper()

	shutdown, err := telemetry.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	return cfg, lg, shutdown, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", ".", "directory containing config.yml")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
