package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/city-weather/internal/common"
	"github.com/i474232898/city-weather/internal/weather"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

/*
	OpenWeather 2.5 response codes
	200  success
	400  bad request (e.g. invalid parameters)
	401  unauthorized (invalid API key)
	404  city not found
	429  too many requests (free tier rate limit)
	5xx  upstream failure
*/

// OpenWeatherConfig configures OpenWeatherProvider. The API key is passed
// through to the upstream untouched.
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string
	Lang    string
}

// OpenWeatherProvider implements weather.Provider for the OpenWeatherMap 2.5
// free tier: /weather for geocoding and current conditions, /forecast for the
// 5 day / 3 hour forecast.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	lang    string
	client  *Client
}

func NewOpenWeatherProvider(client *Client, cfg OpenWeatherConfig) *OpenWeatherProvider {
	base := cfg.BaseURL
	if base == "" {
		base = openWeatherBaseURL
	}
	return &OpenWeatherProvider{
		name:    "openweather",
		apiKey:  cfg.APIKey,
		baseURL: base,
		lang:    cfg.Lang,
		client:  client,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type owCurrentPayload struct {
	Dt       int64 `json:"dt"`
	Timezone int   `json:"timezone"`
	Coord    struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
	Name string `json:"name"`
}

type owForecastPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

func (p *OpenWeatherProvider) params() url.Values {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	if p.lang != "" {
		values.Set("lang", p.lang)
	}
	return values
}

func (p *OpenWeatherProvider) coordParams(c weather.Coordinates) url.Values {
	values := p.params()
	values.Set("lat", strconv.FormatFloat(c.Latitude, 'f', 4, 64))
	values.Set("lon", strconv.FormatFloat(c.Longitude, 'f', 4, 64))
	return values
}

// Geocode resolves a city through the current-weather endpoint, which carries
// the coordinates and the city's UTC offset in one response.
func (p *OpenWeatherProvider) Geocode(ctx context.Context, city string) (weather.Place, error) {
	values := p.params()
	values.Set("q", city)

	body, err := p.client.GetJSON(ctx, p.baseURL+"/weather", values)
	if err != nil {
		if isUnknownCity(err) {
			return weather.Place{}, fmt.Errorf("%w: %q", weather.ErrLocationNotFound, city)
		}
		return weather.Place{}, err
	}

	var payload owCurrentPayload
	if err := decode(body, &payload); err != nil {
		return weather.Place{}, err
	}

	place := weather.Place{
		Name:    payload.Name,
		Country: payload.Sys.Country,
		Coordinates: weather.Coordinates{
			Latitude:  payload.Coord.Lat,
			Longitude: payload.Coord.Lon,
		},
		UTCOffsetSeconds: payload.Timezone,
	}
	if place.Name == "" {
		place.Name = city
	}
	if err := place.Coordinates.Validate(); err != nil {
		return weather.Place{}, fmt.Errorf("%w: %v", weather.ErrNetworkClient, err)
	}
	return place, nil
}

// isUnknownCity reports a 404, or a 400 complaining about the query itself
// (OpenWeather answers "Nothing to geocode" for a blank q).
func isUnknownCity(err error) bool {
	if !errors.Is(err, weather.ErrNetworkClient) {
		return false
	}
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		return common.ContainsAnyFold(se.Body, "city not found", "nothing to geocode")
	}
	return false
}

func (p *OpenWeatherProvider) Current(ctx context.Context, c weather.Coordinates) (weather.CurrentConditions, error) {
	body, err := p.client.GetJSON(ctx, p.baseURL+"/weather", p.coordParams(c))
	if err != nil {
		return weather.CurrentConditions{}, err
	}

	var payload owCurrentPayload
	if err := decode(body, &payload); err != nil {
		return weather.CurrentConditions{}, err
	}

	desc := ""
	if len(payload.Weather) > 0 {
		desc = payload.Weather[0].Description
	}

	return weather.CurrentConditions{
		Name:             payload.Name,
		Country:          payload.Sys.Country,
		ObservedAt:       payload.Dt,
		TemperatureC:     payload.Main.Temp,
		HumidityPct:      payload.Main.Humidity,
		WindSpeed:        payload.Wind.Speed,
		Description:      desc,
		UTCOffsetSeconds: payload.Timezone,
	}, nil
}

func (p *OpenWeatherProvider) Forecast(ctx context.Context, c weather.Coordinates) (weather.ForecastSeries, error) {
	body, err := p.client.GetJSON(ctx, p.baseURL+"/forecast", p.coordParams(c))
	if err != nil {
		return weather.ForecastSeries{}, err
	}

	var payload owForecastPayload
	if err := decode(body, &payload); err != nil {
		return weather.ForecastSeries{}, err
	}

	samples := make([]weather.RawForecastSample, 0, len(payload.List))
	for _, item := range payload.List {
		desc := ""
		if len(item.Weather) > 0 {
			desc = item.Weather[0].Description
		}
		samples = append(samples, weather.RawForecastSample{
			TimestampUTC: item.Dt,
			TemperatureC: item.Main.Temp,
			HumidityPct:  item.Main.Humidity,
			WindSpeed:    item.Wind.Speed,
			Description:  desc,
		})
	}

	return weather.ForecastSeries{
		UTCOffsetSeconds: payload.City.Timezone,
		Samples:          samples,
	}, nil
}
