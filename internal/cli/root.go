package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/city-weather/internal/config"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	cfgFile   string
	logFormat string
	logLevel  string
}

// NewRootCmd builds the city-weather command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "city-weather",
		Short: "Current weather and daily forecasts for any city",
		Long: `city-weather resolves a city name to coordinates, fetches current conditions
and the 5 day / 3 hour forecast from OpenWeatherMap or Open-Meteo, and folds the
forecast into per-day summaries in the city's local time. Upstream responses are
cached on disk so repeated lookups stay off the network.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text or json, overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, overrides config)")

	root.AddCommand(
		newCurrentCmd(opts),
		newForecastCmd(opts),
		newResolveCmd(opts),
		newServeCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config, applies flag overrides and installs the logger.
func (o *options) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger, err := setupLogging(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func setupLogging(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log format must be 'text' or 'json', got %q", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
