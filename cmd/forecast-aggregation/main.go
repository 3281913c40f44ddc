package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	httpapi "github.com/i474232898/forecast-aggregation/internal/api/http"
	"github.com/i474232898/forecast-aggregation/internal/config"
	"github.com/i474232898/forecast-aggregation/internal/logging"
	"github.com/i474232898/forecast-aggregation/internal/publish"
	"github.com/i474232898/forecast-aggregation/internal/scheduler"
	"github.com/i474232898/forecast-aggregation/internal/store"
	"github.com/i474232898/forecast-aggregation/internal/weather"
	"github.com/i474232898/forecast-aggregation/internal/weather/providers"
)

const appName = "forecast-aggregation"

func main() {
	// Load configuration (reads .env first).
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg, appName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("run failed", "err", err)
		os.Exit(1)
	}
	log.Info("shutting down")
}

func run(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) error {
	cache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	log.Info("forecast cache ready", "backend", cfg.CacheBackend)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	provs := buildProviders(cfg, providers.HTTPClientConfig{
		Client:    httpClient,
		Timeout:   cfg.ProviderTimeout,
		RateLimit: cfg.ProviderRateLimit,
		Burst:     cfg.ProviderBurst,
	}, log)
	if len(provs) == 0 {
		log.Warn("no forecast providers configured; every resolution will be empty")
	}

	opts := []weather.Option{
		weather.WithLogger(log),
		weather.WithInvalidation(scheduler.New(log)),
		weather.WithCoalescing(cfg.CoalesceRequests),
	}

	if cfg.MQTTBrokerURL != "" {
		pub := publish.NewMQTTPublisher(publish.Config{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, log)
		defer pub.Close()

		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		// Auto-reconnect keeps trying in the background when the first attempt fails.
		if err := pub.Connect(connectCtx); err != nil {
			log.Warn("mqtt broker not reachable yet", "broker", cfg.MQTTBrokerURL, "err", err)
		}
		cancel()
		opts = append(opts, weather.WithPublisher(pub))
	}

	service := weather.NewService(cache, provs, opts...)
	if err := service.Start(); err != nil {
		return fmt.Errorf("start forecast service: %w", err)
	}
	defer service.Close()

	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New())

	httpapi.RegisterRoutes(app, service, log)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "port", cfg.Port)
		serveErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("fiber server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "err", err)
	}
	return nil
}

// openCache builds the configured cache backend and its release func.
func openCache(ctx context.Context, cfg *config.AppConfig) (weather.Cache, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		cache, err := store.NewSQLiteCache(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return cache, func() { _ = db.Close() }, nil

	case config.CachePostgres:
		pool, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		cache, err := store.NewPostgresCache(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return cache, pool.Close, nil

	default:
		return store.NewMemoryCache(), func() {}, nil
	}
}

// buildProviders registers every provider whose credentials are configured.
func buildProviders(cfg *config.AppConfig, httpCfg providers.HTTPClientConfig, log *slog.Logger) []weather.Provider {
	var provs []weather.Provider
	register := func(name string, enabled bool, p func() weather.Provider) {
		if !enabled {
			log.Info("provider disabled: credentials not configured", "provider", name)
			return
		}
		provs = append(provs, p())
		log.Info("provider enabled", "provider", name)
	}

	register("openweathermap", cfg.OpenWeatherAPIKey != "", func() weather.Provider {
		return providers.NewOpenWeatherProvider(httpCfg, cfg.OpenWeatherAPIKey)
	})
	register("weatherapi", cfg.WeatherAPIKey != "", func() weather.Provider {
		return providers.NewWeatherAPIProvider(httpCfg, cfg.WeatherAPIKey)
	})
	register("aerisweather", cfg.AerisWeatherClientID != "", func() weather.Provider {
		return providers.NewAerisWeatherProvider(httpCfg, cfg.AerisWeatherClientID, cfg.AerisWeatherClientSecret)
	})
	register("weatherbit", cfg.WeatherbitAPIKey != "", func() weather.Provider {
		return providers.NewWeatherbitProvider(httpCfg, cfg.WeatherbitAPIKey)
	})

	// Open-Meteo needs no key of its own but only takes coordinates.
	if geo, err := providers.NewGoogleGeocoder(cfg.GeocoderAPIKey); err == nil {
		register("openmeteo", true, func() weather.Provider {
			return providers.NewOpenMeteoProvider(httpCfg, geo)
		})
	} else {
		register("openmeteo", false, nil)
	}

	return provs
}
