package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/app"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/db"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/http/handlers"
	appmiddleware "github.com/AmaniTsuma/smartdesk-backend-sub000/internal/http/middleware"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CustomValidator wraps go-playground/validator for echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates a struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	setupLogging()

	shutdownTelemetry, telemetryEnabled, err := telemetry.InitTelemetry()
	if err != nil {
		log.Warn().Err(err).Msg("telemetry initialization failed")
	}
	defer shutdownTelemetry()

	database, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := db.RunMigrations(database); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	if err := db.SeedInitialData(database); err != nil {
		log.Fatal().Err(err).Msg("database seeding failed")
	}

	services := app.NewServices(database)

	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, "X-Request-ID"},
	}))
	e.Use(appmiddleware.RequestID())
	if telemetryEnabled {
		e.Use(appmiddleware.Telemetry())
	}

	handlers.SetupRoutes(e, services)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Info().Str("port", port).Msg("starting server")
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func corsOrigins() []string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return []string{origins}
	}
	return []string{"*"}
}
