package weather

import (
	"fmt"
	"time"
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports whether the pair lies within the valid geographic ranges.
func (c Coordinates) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", c.Longitude)
	}
	return nil
}

// Place is the result of resolving a city name upstream.
type Place struct {
	Name             string      `json:"name"`
	Country          string      `json:"country,omitempty"`
	Coordinates      Coordinates `json:"coordinates"`
	UTCOffsetSeconds int         `json:"utcOffsetSeconds"`
}

// Label renders the place as "Name, CC", or just the name when the country is unknown.
func (p Place) Label() string {
	if p.Country == "" {
		return p.Name
	}
	return p.Name + ", " + p.Country
}

// CurrentConditions is a provider's normalized current-weather reading.
type CurrentConditions struct {
	Name             string  `json:"name,omitempty"`
	Country          string  `json:"country,omitempty"`
	ObservedAt       int64   `json:"observedAt"`
	TemperatureC     float64 `json:"temperatureC"`
	HumidityPct      int     `json:"humidityPct"`
	WindSpeed        float64 `json:"windSpeed"`
	Description      string  `json:"description"`
	UTCOffsetSeconds int     `json:"utcOffsetSeconds"`
}

// RawForecastSample is a single 3-hour forecast slot as delivered upstream.
type RawForecastSample struct {
	TimestampUTC int64   `json:"timestampUtc"`
	TemperatureC float64 `json:"temperatureC"`
	HumidityPct  int     `json:"humidityPct"`
	WindSpeed    float64 `json:"windSpeed"`
	Description  string  `json:"description"`
}

// ForecastSeries is a provider's normalized multi-day forecast.
type ForecastSeries struct {
	UTCOffsetSeconds int                 `json:"utcOffsetSeconds"`
	Samples          []RawForecastSample `json:"samples"`
}

// DailySummary aggregates the forecast samples of one city-local calendar day.
// Date is midnight UTC of that local date.
type DailySummary struct {
	Date        time.Time `json:"date"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	TempAvg     float64   `json:"tempAvg"`
	HumidityAvg float64   `json:"humidityAvg"`
	WindAvg     float64   `json:"windAvg"`
	Description string    `json:"description"`
	Samples     int       `json:"samples"`
}

// DateString returns the local calendar date as YYYY-MM-DD.
func (d DailySummary) DateString() string {
	return d.Date.Format(time.DateOnly)
}

// WeatherSummary is the caller-facing view of current conditions.
type WeatherSummary struct {
	TemperatureC  float64 `json:"temperatureC"`
	Description   string  `json:"description"`
	HumidityPct   int     `json:"humidityPct"`
	WindSpeed     float64 `json:"windSpeed"`
	LocationLabel string  `json:"location"`
}

// FormatTemperature renders the temperature with one decimal place.
func (w WeatherSummary) FormatTemperature() string {
	return FormatCelsius(w.TemperatureC)
}

func (w WeatherSummary) String() string {
	return fmt.Sprintf("Current weather in %s: %s, %s, humidity %d%%, wind %.1f m/s.",
		w.LocationLabel, w.FormatTemperature(), w.Description, w.HumidityPct, w.WindSpeed)
}

// FormatCelsius renders a temperature for display only.
func FormatCelsius(t float64) string {
	return fmt.Sprintf("%.1f°C", t)
}

// DayLabel names a forecast day relative to today: "today", "tomorrow" or
// "in N days".
func DayLabel(dayOffset int) string {
	switch dayOffset {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", dayOffset)
	}
}

// Describe renders the day as one line, e.g. "Forecast for Irkutsk, RU
// tomorrow (2024-06-11): light rain, 2.0°C to 9.5°C, humidity 71%, wind 3.2 m/s."
func (d DailySummary) Describe(location string, dayOffset int) string {
	return fmt.Sprintf("Forecast for %s %s (%s): %s, %s to %s, humidity %.0f%%, wind %.1f m/s.",
		location, DayLabel(dayOffset), d.DateString(), d.Description,
		FormatCelsius(d.TempMin), FormatCelsius(d.TempMax), d.HumidityAvg, d.WindAvg)
}
