package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/forecast-aggregation/internal/weather"
)

// weeklyDays is the number of slots in a weekly response.
const weeklyDays = 5

var validate = validator.New()

// Resolver is the part of the forecast engine the HTTP layer depends on.
type Resolver interface {
	Resolve(ctx context.Context, q weather.Query) (weather.ForecastSeries, error)
	Stats() weather.Stats
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, resolver Resolver, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "forecast-aggregation",
			"stats":   resolver.Stats(),
		})
	})

	forecast := app.Group("/api/v1/forecast")

	forecast.Get("/daily/:country/:city/:day", func(c *fiber.Ctx) error {
		var req dailyRequest
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		series, err := resolver.Resolve(c.UserContext(), req.query())
		if err != nil {
			logger.Error("forecast resolution failed", "key", req.query().Key(), "err", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve forecast")
		}

		day, _ := time.Parse(weather.DateLayout, req.Day)
		entry, ok := series.Day(day)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("weather data not found for day %s", req.Day))
		}

		return c.JSON(entry)
	})

	forecast.Get("/weekly/:country/:city", func(c *fiber.Ctx) error {
		var req placeRequest
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		series, err := resolver.Resolve(c.UserContext(), req.query())
		if err != nil {
			logger.Error("forecast resolution failed", "key", req.query().Key(), "err", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve forecast")
		}

		return c.JSON(series.Window(weeklyDays))
	})
}

// ErrorHandler renders every handler error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// placeRequest holds the path parameters identifying a place.
type placeRequest struct {
	Country string `validate:"required"`
	City    string `validate:"required"`
}

func (p *placeRequest) bind(c *fiber.Ctx) error {
	var err error
	if p.Country, err = pathParam(c, "country"); err != nil {
		return err
	}
	if p.City, err = pathParam(c, "city"); err != nil {
		return err
	}
	return validate.Struct(p)
}

func (p placeRequest) query() weather.Query {
	return weather.Query{Country: p.Country, City: p.City}
}

// dailyRequest adds the requested calendar day to a place.
type dailyRequest struct {
	placeRequest
	Day string `validate:"required,datetime=2006-01-02"`
}

func (d *dailyRequest) bind(c *fiber.Ctx) error {
	var err error
	if d.Day, err = pathParam(c, "day"); err != nil {
		return err
	}
	if err := d.placeRequest.bind(c); err != nil {
		return err
	}
	return validate.Struct(d)
}

// pathParam returns an unescaped copy of a route parameter.
// Fiber params alias the request buffer, and queries outlive the request as cache keys.
func pathParam(c *fiber.Ctx, name string) (string, error) {
	v, err := url.PathUnescape(utils.CopyString(c.Params(name)))
	if err != nil {
		return "", fmt.Errorf("invalid %s path parameter: %w", name, err)
	}
	return v, nil
}
