package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/store"
)

// TTLs sets the cache freshness window per endpoint kind. Zero values fall
// back to store.DefaultTTL.
type TTLs struct {
	Geocode  time.Duration
	Current  time.Duration
	Forecast time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Geocode <= 0 {
		t.Geocode = store.DefaultTTL
	}
	if t.Current <= 0 {
		t.Current = store.DefaultTTL
	}
	if t.Forecast <= 0 {
		t.Forecast = store.DefaultTTL
	}
	return t
}

// Service resolves cities and serves current conditions and daily forecasts,
// consulting the cache before every upstream call.
type Service struct {
	provider Provider
	cache    store.Store
	ttl      TTLs
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTLs overrides the per-endpoint cache TTLs.
func WithTTLs(t TTLs) Option {
	return func(s *Service) { s.ttl = t.withDefaults() }
}

// WithMetrics records cache lookups and aggregation sizes.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, which decides freshness and "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new Service.
func NewService(p Provider, cache store.Store, opts ...Option) *Service {
	s := &Service{
		provider: p,
		cache:    cache,
		ttl:      TTLs{}.withDefaults(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the place for a city name.
func (s *Service) Resolve(ctx context.Context, city string) (Place, error) {
	query := strings.TrimSpace(city)
	if NormalizeCity(query) == "" {
		return Place{}, fmt.Errorf("%w: empty city name", ErrLocationNotFound)
	}

	key := GeocodeKey(s.provider.Name(), query)
	place, err := cached(ctx, s, "geocode", key, s.ttl.Geocode, func() (Place, error) {
		return s.provider.Geocode(ctx, query)
	})
	if err != nil {
		return Place{}, fmt.Errorf("resolving %q: %w", query, err)
	}
	return place, nil
}

// ResolveLocation returns only the coordinates of a city.
func (s *Service) ResolveLocation(ctx context.Context, city string) (Coordinates, error) {
	place, err := s.Resolve(ctx, city)
	if err != nil {
		return Coordinates{}, err
	}
	return place.Coordinates, nil
}

// Current returns the current conditions for a city.
func (s *Service) Current(ctx context.Context, city string) (WeatherSummary, error) {
	place, err := s.Resolve(ctx, city)
	if err != nil {
		return WeatherSummary{}, err
	}

	key := CurrentKey(s.provider.Name(), place.Coordinates)
	cur, err := cached(ctx, s, "current", key, s.ttl.Current, func() (CurrentConditions, error) {
		return s.provider.Current(ctx, place.Coordinates)
	})
	if err != nil {
		return WeatherSummary{}, fmt.Errorf("current weather for %q: %w", place.Label(), err)
	}

	label := place.Label()
	if place.Name == "" && cur.Name != "" {
		label = Place{Name: cur.Name, Country: cur.Country}.Label()
	}

	return WeatherSummary{
		TemperatureC:  cur.TemperatureC,
		Description:   cur.Description,
		HumidityPct:   cur.HumidityPct,
		WindSpeed:     cur.WindSpeed,
		LocationLabel: label,
	}, nil
}

// DailyForecastAll returns one summary per city-local day covered by the
// upstream forecast, ordered by date.
func (s *Service) DailyForecastAll(ctx context.Context, city string) ([]DailySummary, error) {
	days, _, err := s.dailyForecast(ctx, city)
	return days, err
}

// DailyForecast returns the summary for today_local + dayOffset. Offsets
// outside the forecast's dates fail with ErrForecastHorizonExceeded.
func (s *Service) DailyForecast(ctx context.Context, city string, dayOffset int) (DailySummary, error) {
	if dayOffset < 0 {
		return DailySummary{}, fmt.Errorf("%w: day offset %d is in the past", ErrForecastHorizonExceeded, dayOffset)
	}

	days, offset, err := s.dailyForecast(ctx, city)
	if err != nil {
		return DailySummary{}, err
	}

	target := LocalDate(s.now().Unix(), offset).AddDate(0, 0, dayOffset)
	for _, d := range days {
		if d.Date.Equal(target) {
			return d, nil
		}
	}

	if len(days) == 0 {
		return DailySummary{}, fmt.Errorf("%w: no forecast data for %q", ErrForecastHorizonExceeded, city)
	}
	return DailySummary{}, fmt.Errorf("%w: %s requested, forecast covers %s to %s",
		ErrForecastHorizonExceeded, target.Format(time.DateOnly),
		days[0].DateString(), days[len(days)-1].DateString())
}

func (s *Service) dailyForecast(ctx context.Context, city string) ([]DailySummary, int, error) {
	place, err := s.Resolve(ctx, city)
	if err != nil {
		return nil, 0, err
	}

	key := ForecastKey(s.provider.Name(), place.Coordinates)
	series, err := cached(ctx, s, "forecast", key, s.ttl.Forecast, func() (ForecastSeries, error) {
		return s.provider.Forecast(ctx, place.Coordinates)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("forecast for %q: %w", place.Label(), err)
	}

	// The forecast response carries the offset in effect now; a cached place
	// may predate a DST change.
	offset := series.UTCOffsetSeconds
	days := AggregateDaily(series.Samples, offset)
	s.metrics.RecordForecastDays(len(days))
	return days, offset, nil
}

// cached serves a fresh cache entry for key or calls fetch and stores the
// result. Cache failures degrade to a live fetch and are only logged.
func cached[T any](ctx context.Context, s *Service, kind, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var zero T

	entry, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.RecordCacheLookup(kind, "error")
		s.logger.Warn("cache read failed, fetching live",
			"key", key, "error", fmt.Errorf("%w: %w", ErrCacheIO, err))
	case entry == nil:
		s.metrics.RecordCacheLookup(kind, "miss")
	case !store.IsFresh(entry, ttl, s.now()):
		s.metrics.RecordCacheLookup(kind, "stale")
	default:
		var v T
		if err := json.Unmarshal(entry.Payload, &v); err == nil {
			s.metrics.RecordCacheLookup(kind, "hit")
			s.logger.Debug("cache hit", "key", key, "age", s.now().Sub(entry.FetchedAt))
			return v, nil
		}
		s.metrics.RecordCacheLookup(kind, "error")
		s.logger.Warn("undecodable cache entry, fetching live", "key", key)
	}

	v, err := fetch()
	if err != nil {
		return zero, err
	}

	payload, err := json.Marshal(v)
	if err == nil {
		err = s.cache.Put(ctx, key, payload)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.metrics.RecordCacheWriteError(kind)
		s.logger.Warn("cache write failed", "key", key, "error", fmt.Errorf("%w: %w", ErrCacheIO, err))
	}
	return v, nil
}
