package weather

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Provider abstracts an upstream weather API (e.g. OpenWeatherMap, Open-Meteo).
// Implementations perform the network calls; caching is done by Service.
type Provider interface {
	Name() string

	// Geocode resolves a city name. It returns an error wrapping
	// ErrLocationNotFound when the upstream has no match.
	Geocode(ctx context.Context, city string) (Place, error)

	Current(ctx context.Context, c Coordinates) (CurrentConditions, error)
	Forecast(ctx context.Context, c Coordinates) (ForecastSeries, error)
}

// NormalizeCity case-folds a city name and collapses its whitespace so that
// " Irkutsk,RU" and "irkutsk,ru" share one cache entry.
func NormalizeCity(city string) string {
	return cases.Fold().String(strings.Join(strings.Fields(city), " "))
}

// GeocodeKey is the cache key for a geocoding lookup.
func GeocodeKey(provider, city string) string {
	return provider + ":geocode:" + NormalizeCity(city)
}

// CurrentKey is the cache key for current conditions at a coordinate pair.
func CurrentKey(provider string, c Coordinates) string {
	return provider + ":current:" + coordKey(c)
}

// ForecastKey is the cache key for the raw forecast at a coordinate pair.
func ForecastKey(provider string, c Coordinates) string {
	return provider + ":forecast:" + coordKey(c)
}

// coordKey rounds to two decimals (~1 km), well inside a city's footprint.
func coordKey(c Coordinates) string {
	lat := fmt.Sprintf("%.2f", c.Latitude)
	lon := fmt.Sprintf("%.2f", c.Longitude)
	// Avoid "-0.00" and "0.00" naming two different keys.
	if lat == "-0.00" {
		lat = "0.00"
	}
	if lon == "-0.00" {
		lon = "0.00"
	}
	return lat + "," + lon
}
