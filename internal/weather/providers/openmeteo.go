package providers

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/i474232898/city-weather/internal/weather"
)

const (
	openMeteoForecastURL  = "https://api.open-meteo.com/v1/forecast"
	openMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

	// Hourly data is thinned to the 3-hour grid used by the aggregator.
	openMeteoStepSeconds = 3 * 3600
	openMeteoForecastDay = 5
)

// OpenMeteoConfig configures OpenMeteoProvider. Open-Meteo needs no API key.
type OpenMeteoConfig struct {
	ForecastURL  string
	GeocodingURL string
	Lang         string
}

// OpenMeteoProvider implements weather.Provider for Open-Meteo. Its geocoder
// returns no UTC offset, so Geocode makes a second call to the forecast
// endpoint with timezone=auto to read utc_offset_seconds.
type OpenMeteoProvider struct {
	name         string
	forecastURL  string
	geocodingURL string
	lang         string
	client       *Client
}

func NewOpenMeteoProvider(client *Client, cfg OpenMeteoConfig) *OpenMeteoProvider {
	p := &OpenMeteoProvider{
		name:         "openmeteo",
		forecastURL:  cfg.ForecastURL,
		geocodingURL: cfg.GeocodingURL,
		lang:         cfg.Lang,
		client:       client,
	}
	if p.forecastURL == "" {
		p.forecastURL = openMeteoForecastURL
	}
	if p.geocodingURL == "" {
		p.geocodingURL = openMeteoGeocodingURL
	}
	if p.lang == "" {
		p.lang = "en"
	}
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type omGeocodingPayload struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		CountryCode string  `json:"country_code"`
	} `json:"results"`
}

type omCurrentPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Current          struct {
		Time        int64   `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

type omHourlyPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           struct {
		Time        []int64   `json:"time"`
		Temperature []float64 `json:"temperature_2m"`
		Humidity    []float64 `json:"relative_humidity_2m"`
		WindSpeed   []float64 `json:"wind_speed_10m"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"hourly"`
}

func coordValues(c weather.Coordinates) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', 4, 64))
	values.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', 4, 64))
	values.Set("timezone", "auto")
	values.Set("timeformat", "unixtime")
	values.Set("wind_speed_unit", "ms")
	return values
}

// Geocode accepts "City" or "City,CC"; the country code filters the matches.
func (p *OpenMeteoProvider) Geocode(ctx context.Context, city string) (weather.Place, error) {
	name, country, _ := strings.Cut(city, ",")
	name = strings.TrimSpace(name)
	country = strings.ToUpper(strings.TrimSpace(country))

	count := 1
	if country != "" {
		count = 10
	}

	values := url.Values{}
	values.Set("name", name)
	values.Set("count", strconv.Itoa(count))
	values.Set("language", p.lang)
	values.Set("format", "json")

	body, err := p.client.GetJSON(ctx, p.geocodingURL, values)
	if err != nil {
		return weather.Place{}, err
	}

	var payload omGeocodingPayload
	if err := decode(body, &payload); err != nil {
		return weather.Place{}, err
	}

	var place *weather.Place
	for _, r := range payload.Results {
		if country != "" && !strings.EqualFold(r.CountryCode, country) {
			continue
		}
		place = &weather.Place{
			Name:        r.Name,
			Country:     r.CountryCode,
			Coordinates: weather.Coordinates{Latitude: r.Latitude, Longitude: r.Longitude},
		}
		break
	}
	if place == nil {
		return weather.Place{}, fmt.Errorf("%w: %q", weather.ErrLocationNotFound, city)
	}
	if err := place.Coordinates.Validate(); err != nil {
		return weather.Place{}, fmt.Errorf("%w: %v", weather.ErrNetworkClient, err)
	}

	cur, err := p.current(ctx, place.Coordinates)
	if err != nil {
		return weather.Place{}, fmt.Errorf("looking up utc offset: %w", err)
	}
	place.UTCOffsetSeconds = cur.UTCOffsetSeconds
	return *place, nil
}

func (p *OpenMeteoProvider) current(ctx context.Context, c weather.Coordinates) (omCurrentPayload, error) {
	values := coordValues(c)
	values.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")

	body, err := p.client.GetJSON(ctx, p.forecastURL, values)
	if err != nil {
		return omCurrentPayload{}, err
	}

	var payload omCurrentPayload
	if err := decode(body, &payload); err != nil {
		return omCurrentPayload{}, err
	}
	return payload, nil
}

func (p *OpenMeteoProvider) Current(ctx context.Context, c weather.Coordinates) (weather.CurrentConditions, error) {
	payload, err := p.current(ctx, c)
	if err != nil {
		return weather.CurrentConditions{}, err
	}

	return weather.CurrentConditions{
		ObservedAt:       payload.Current.Time,
		TemperatureC:     payload.Current.Temperature,
		HumidityPct:      int(math.Round(payload.Current.Humidity)),
		WindSpeed:        payload.Current.WindSpeed,
		Description:      wmoDescription(payload.Current.WeatherCode),
		UTCOffsetSeconds: payload.UTCOffsetSeconds,
	}, nil
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, c weather.Coordinates) (weather.ForecastSeries, error) {
	values := coordValues(c)
	values.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code")
	values.Set("forecast_days", strconv.Itoa(openMeteoForecastDay))

	body, err := p.client.GetJSON(ctx, p.forecastURL, values)
	if err != nil {
		return weather.ForecastSeries{}, err
	}

	var payload omHourlyPayload
	if err := decode(body, &payload); err != nil {
		return weather.ForecastSeries{}, err
	}

	h := payload.Hourly
	n := len(h.Time)
	if len(h.Temperature) != n || len(h.Humidity) != n || len(h.WindSpeed) != n || len(h.WeatherCode) != n {
		return weather.ForecastSeries{}, fmt.Errorf("%w: hourly arrays have mismatched lengths", weather.ErrNetworkClient)
	}

	samples := make([]weather.RawForecastSample, 0, n/3+1)
	for i, ts := range h.Time {
		if ts%openMeteoStepSeconds != 0 {
			continue
		}
		samples = append(samples, weather.RawForecastSample{
			TimestampUTC: ts,
			TemperatureC: h.Temperature[i],
			HumidityPct:  int(math.Round(h.Humidity[i])),
			WindSpeed:    h.WindSpeed[i],
			Description:  wmoDescription(h.WeatherCode[i]),
		})
	}

	return weather.ForecastSeries{
		UTCOffsetSeconds: payload.UTCOffsetSeconds,
		Samples:          samples,
	}, nil
}

// wmoDescription maps WMO weather interpretation codes to the lower-case
// phrases OpenWeather uses, so both providers read alike.
func wmoDescription(code int) string {
	switch code {
	case 0:
		return "clear sky"
	case 1:
		return "mainly clear"
	case 2:
		return "partly cloudy"
	case 3:
		return "overcast clouds"
	case 45, 48:
		return "fog"
	case 51, 53, 55:
		return "drizzle"
	case 56, 57:
		return "freezing drizzle"
	case 61:
		return "light rain"
	case 63:
		return "moderate rain"
	case 65:
		return "heavy intensity rain"
	case 66, 67:
		return "freezing rain"
	case 71:
		return "light snow"
	case 73:
		return "snow"
	case 75:
		return "heavy snow"
	case 77:
		return "snow grains"
	case 80, 81, 82:
		return "shower rain"
	case 85, 86:
		return "shower snow"
	case 95:
		return "thunderstorm"
	case 96, 99:
		return "thunderstorm with hail"
	default:
		return "unknown"
	}
}
