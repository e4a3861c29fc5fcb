package httpapi

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/city-weather/internal/weather"
)

var validate = validator.New()

// WeatherService is the subset of *weather.Service the handlers need.
type WeatherService interface {
	ResolveLocation(ctx context.Context, city string) (weather.Coordinates, error)
	Current(ctx context.Context, city string) (weather.WeatherSummary, error)
	DailyForecast(ctx context.Context, city string, dayOffset int) (weather.DailySummary, error)
	DailyForecastAll(ctx context.Context, city string) ([]weather.DailySummary, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service WeatherService) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations/resolve", func(c *fiber.Ctx) error {
		q, err := parseCityQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coords, err := service.ResolveLocation(c.UserContext(), q.City)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{
			"city":        q.City,
			"coordinates": coords,
		})
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		q, err := parseCityQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, err := service.Current(c.UserContext(), q.City)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(currentResponse{WeatherSummary: summary, Text: summary.String()})
	})

	v1.Get("/weather/forecast", func(c *fiber.Ctx) error {
		var q forecastQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		day, err := service.DailyForecast(c.UserContext(), q.City, q.DayOffset)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(fiber.Map{
			"city":       q.City,
			"day_offset": q.DayOffset,
			"label":      weather.DayLabel(q.DayOffset),
			"day":        newDayView(day),
		})
	})

	v1.Get("/weather/forecast/daily", func(c *fiber.Ctx) error {
		q, err := parseCityQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		days, err := service.DailyForecastAll(c.UserContext(), q.City)
		if err != nil {
			return serviceError(err)
		}
		views := make([]dayView, 0, len(days))
		for _, d := range days {
			views = append(views, newDayView(d))
		}
		return c.JSON(fiber.Map{
			"city": q.City,
			"days": views,
		})
	})
}

// cityQuery holds the query parameter naming a city, e.g. "Irkutsk,ru".
type cityQuery struct {
	City string `validate:"required,max=200"`
}

func parseCityQuery(c *fiber.Ctx) (cityQuery, error) {
	q := cityQuery{City: c.Query("city")}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// forecastQuery holds query parameters for the single-day forecast endpoint.
type forecastQuery struct {
	City      string `validate:"required,max=200"`
	DayOffset int    `validate:"min=0"`
}

func (f *forecastQuery) bind(c *fiber.Ctx) error {
	f.City = c.Query("city")
	f.DayOffset = 1

	if raw := c.Query("day_offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.New("day_offset must be an integer")
		}
		f.DayOffset = n
	}
	return validate.Struct(f)
}

type currentResponse struct {
	weather.WeatherSummary
	Text string `json:"text"`
}

// dayView renders the date as YYYY-MM-DD instead of an RFC 3339 timestamp.
type dayView struct {
	Date        string  `json:"date"`
	TempMin     float64 `json:"tempMin"`
	TempMax     float64 `json:"tempMax"`
	TempAvg     float64 `json:"tempAvg"`
	HumidityAvg float64 `json:"humidityAvg"`
	WindAvg     float64 `json:"windAvg"`
	Description string  `json:"description"`
	Samples     int     `json:"samples"`
}

func newDayView(d weather.DailySummary) dayView {
	return dayView{
		Date:        d.DateString(),
		TempMin:     d.TempMin,
		TempMax:     d.TempMax,
		TempAvg:     d.TempAvg,
		HumidityAvg: d.HumidityAvg,
		WindAvg:     d.WindAvg,
		Description: d.Description,
		Samples:     d.Samples,
	}
}

// serviceError maps service failures onto HTTP status codes.
func serviceError(err error) error {
	switch {
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrForecastHorizonExceeded):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, weather.ErrNetworkClient):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrNetworkTransient):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "request timed out")
	default:
		return err
	}
}
