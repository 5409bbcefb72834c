// Package server wires the prediction service into an HTTP app: routes,
// middleware, error mapping and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/config"
	"github.com/diamondlab/pricer/pkg/contract"
	"github.com/diamondlab/pricer/pkg/serving"
)

// Version is stamped by the build; the /version endpoint reports it.
var Version = "dev"

func NewApp(cfg *config.Config, service *serving.Service) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             16 * 1024 * 1024,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          600 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "pricer/" + Version,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(compress.New())
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format: "${status} - ${latency} ${method} ${path}\n",
		Output: logrus.StandardLogger().Writer(),
	}))

	handlers := &handlers{service: service, parser: newRequestParser()}

	app.Get("/health", handlers.Health)
	app.Post("/predict", handlers.Predict)
	app.Get("/version", func(c *fiber.Ctx) error {
		return c.SendString(Version)
	})

	if cfg.StaticFolder != "" {
		app.Static("/", cfg.StaticFolder)
		app.Get("/", func(c *fiber.Ctx) error {
			return c.SendFile(filepath.Join(cfg.StaticFolder, "index.html"))
		})
	}

	return app
}

// Run serves the app until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func Run(ctx context.Context, cfg *config.Config, service *serving.Service) error {
	app := NewApp(cfg, service)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout.Duration); err != nil {
			logrus.Errorf("Failed to gracefully shutdown server: %v", err)
		}
	}()

	logrus.Infof("serving on %s", cfg.Address)
	if err := app.Listen(cfg.Address); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// errorHandler maps typed errors onto their status code and renders the
// public {"error": string} body the demo endpoints promise.
func errorHandler(c *fiber.Ctx, err error) error {
	var e *contract.Error
	if !errors.As(err, &e) {
		code := contract.ErrorCodeInternalError

		var f *fiber.Error
		if errors.As(err, &f) {
			switch f.Code {
			case fiber.StatusBadRequest:
				code = contract.ErrorCodeBadRequest
			case fiber.StatusNotFound:
				code = contract.ErrorCodeEndpointNotFound
			}
		}

		e = contract.NewError(code, err.Error())
	}

	var fn func(format string, args ...any)
	switch e.StatusCode() {
	case fiber.StatusBadRequest:
		fn = logrus.Infof
	case fiber.StatusNotFound:
		fn = logrus.Debugf
	default:
		fn = logrus.Errorf
	}
	fn("Error encountered in %s %s: %s", c.Method(), c.Path(), err)

	return c.Status(e.StatusCode()).JSON(contract.ErrorResponse{Error: e.Message})
}
