package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/i474232898/city-weather/internal/config"
	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/store"
	"github.com/i474232898/city-weather/internal/weather"
	"github.com/i474232898/city-weather/internal/weather/providers"
)

// openStore opens the configured cache backend.
func openStore(cfg *config.Config) (store.Store, error) {
	s, err := store.Open(cfg.Cache.Driver, cfg.StoreLocation())
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Driver, err)
	}
	return s, nil
}

// newProvider builds the configured upstream behind a resilient client.
func newProvider(cfg *config.Config, logger *slog.Logger, m *metrics.Collector) (weather.Provider, error) {
	client := providers.NewClient(providers.ClientConfig{
		Name:    cfg.Provider,
		HTTP:    &http.Client{Timeout: cfg.HTTP.Timeout},
		Policy:  cfg.RetryPolicy(),
		Metrics: m,
		Logger:  logger,

		CircuitBreaker: cfg.HTTP.CircuitBreaker,
	})

	switch cfg.Provider {
	case "openweather":
		if cfg.APIKey == "" {
			logger.Warn("no API key configured; OpenWeather will reject requests",
				"hint", "set OPENWEATHER_API_KEY or api_key in the config file")
		}
		return providers.NewOpenWeatherProvider(client, providers.OpenWeatherConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Lang:    cfg.Lang,
		}), nil
	case "openmeteo":
		omCfg := providers.OpenMeteoConfig{Lang: cfg.Lang}
		if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
			omCfg.ForecastURL = base + "/v1/forecast"
			omCfg.GeocodingURL = base + "/v1/search"
		}
		return providers.NewOpenMeteoProvider(client, omCfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newService wires store, provider and service. The caller closes the store.
func newService(cfg *config.Config, logger *slog.Logger, m *metrics.Collector) (*weather.Service, store.Store, error) {
	cache, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	p, err := newProvider(cfg, logger, m)
	if err != nil {
		_ = cache.Close()
		return nil, nil, err
	}

	svc := weather.NewService(p, cache,
		weather.WithTTLs(cfg.TTLs()),
		weather.WithMetrics(m),
		weather.WithLogger(logger),
	)
	return svc, cache, nil
}
