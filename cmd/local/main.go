package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jusunglee/subway-board/internal/config"
	"github.com/jusunglee/subway-board/pkg/mta"
)

var (
	configPath string
	station    string
	lines      []string
	apiKey     string
)

var rootCmd = &cobra.Command{
	Use:          "subway-board",
	Short:        "Next-train countdowns for one NYC subway station",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&station, "station", "s", "", "Station id (e.g. 23st)")
	rootCmd.PersistentFlags().StringSliceVarP(&lines, "lines", "l", nil, "Lines to show, comma separated (default: all lines at the station)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "MTA API key (or MTA_API_KEY)")

	rootCmd.AddCommand(timesCmd, watchCmd, fixtureCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies .env, the config file, the environment and then flags
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if station != "" || len(lines) > 0 || apiKey != "" {
		if station != "" {
			cfg.Station = station
		}
		if len(lines) > 0 {
			cfg.Lines = lines
		}
		if apiKey != "" {
			cfg.APIKey = apiKey
		}
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newClient() (*config.Config, *mta.LocalClient, *slog.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, nil, nil, err
	}

	client, err := mta.NewLocal(mta.FromAppConfig(cfg), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, client, logger, nil
}
