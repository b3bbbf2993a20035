// Package httpapi serves the core over HTTP with fiber.
package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription/logic"
)

const actorKey = "actor"

// Config tunes the HTTP surface.
type Config struct {
	// UploadDir is served read-only under UploadURL when set.
	UploadDir   string
	UploadURL   string
	MaxFileSize int64
	// RateLimit is the request budget per client IP per RateWindow. Zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

type handler struct {
	svc    api.Services
	cfg    Config
	logger *zap.Logger
}

// New builds the fiber app with every route mounted.
func New(svc api.Services, cfg Config, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = logic.DefaultMaxFileSize
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	h := &handler{svc: svc, cfg: cfg, logger: logger}

	app := fiber.New(fiber.Config{
		AppName:               "medreserve",
		DisableStartupMessage: true,
		ErrorHandler:          h.handleError,
		BodyLimit:             int(cfg.MaxFileSize)*logic.MaxFiles + 1<<20,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Output: zap.NewStdLog(logger.Named("http")).Writer(),
		Format: "${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.UploadDir != "" && cfg.UploadURL != "" {
		app.Static(cfg.UploadURL, cfg.UploadDir, fiber.Static{Browse: false})
	}

	v1 := app.Group("/api/v1")
	if cfg.RateLimit > 0 {
		v1.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: cfg.RateWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(api.Error{Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			},
		}))
	}
	v1.Use(identify)

	v1.Put("/inventory", h.adjustStock)
	v1.Get("/inventory", h.listInventory)
	v1.Get("/search", h.search)

	v1.Post("/reservations", h.createReservation)
	v1.Get("/reservations", h.listReservations)
	v1.Get("/reservations/:id", h.getReservation)
	v1.Post("/reservations/:id/confirm", h.confirmReservation)
	v1.Post("/reservations/:id/cancel", h.cancelReservation)
	v1.Post("/reservations/:id/pickup", h.pickupReservation)

	v1.Post("/prescriptions", h.submitPrescription)
	v1.Get("/prescriptions", h.listPrescriptions)
	v1.Get("/prescriptions/:id", h.getPrescription)
	v1.Post("/prescriptions/:id/review", h.startReview)
	v1.Post("/prescriptions/:id/decision", h.decide)
	v1.Post("/prescriptions/:id/confirm", h.confirmPrescription)
	v1.Post("/prescriptions/:id/cancel", h.cancelPrescription)

	return app
}

// identify stores the caller named by the gateway's identity headers.
func identify(c *fiber.Ctx) error {
	c.Locals(actorKey, api.ActorFrom(func(key string) string { return c.Get(key) }))
	return c.Next()
}

func actorOf(c *fiber.Ctx) medreserve.Actor {
	a, _ := c.Locals(actorKey).(medreserve.Actor)
	return a
}

// StatusOf maps a core error to an HTTP status code.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	code, ok := medreserve.CodeOf(err)
	if !ok {
		return fiber.StatusInternalServerError
	}
	switch code {
	case medreserve.StatusInvalidArgument, medreserve.StatusInvalidFile, medreserve.StatusInvalidQuantity:
		return fiber.StatusBadRequest
	case medreserve.StatusNotFound:
		return fiber.StatusNotFound
	case medreserve.StatusInsufficientStock, medreserve.StatusInvalidState,
		medreserve.StatusAlreadyTerminal, medreserve.StatusFailedPrecondition:
		return fiber.StatusConflict
	case medreserve.StatusExpired:
		return fiber.StatusGone
	case medreserve.StatusForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *handler) handleError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)
	body := api.FromError(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		body = api.Error{Code: "HTTP_" + strconv.Itoa(fe.Code), Message: fe.Message}
	}
	if status >= fiber.StatusInternalServerError {
		h.logger.Error("http request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(body)
}
