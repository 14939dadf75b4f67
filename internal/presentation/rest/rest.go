package rest

import (
	"errors"
	"log/slog"

	"github.com/Builder-Lawyers/hub-provisioner/internal/application"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/dto"
	"github.com/Builder-Lawyers/hub-provisioner/internal/application/errs"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const stripeSignatureHeader = "Stripe-Signature"

type Server struct {
	handlers *application.Handlers
}

func NewServer(handlers *application.Handlers) *Server {
	return &Server{handlers: handlers}
}

// RegisterHandlers mounts the public checkout routes, health, metrics and the
// operator routes guarded by adminSecret.
func RegisterHandlers(app *fiber.App, s *Server, gatherer prometheus.Gatherer, adminSecret []byte) {
	api := app.Group("/api")
	api.Get("/health", s.Health)
	api.Post("/checkout/webhook", s.Webhook)
	api.Post("/checkout/create-session", s.CreateSession)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	admin := app.Group("/admin", AdminAuth(adminSecret))
	admin.Get("/customers/:paymentCustomerId", s.GetCustomer)
}

func (s *Server) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(dto.StatusResponse{Status: "ok"})
}

func (s *Server) Webhook(c *fiber.Ctx) error {
	err := s.handlers.Payment.Webhook(c.UserContext(), c.Body(), c.Get(stripeSignatureHeader))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.StatusResponse{Status: "ok"})
}

func (s *Server) CreateSession(c *fiber.Ctx) error {
	url, err := s.handlers.Payment.CreateSession(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(dto.CreateSessionResponse{URL: url})
}

func (s *Server) GetCustomer(c *fiber.Ctx) error {
	id := c.Params("paymentCustomerId")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "paymentCustomerId is required"})
	}

	resp, err := s.handlers.GetCustomer.Query(c.UserContext(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func errorResponse(c *fiber.Ctx, err error) error {
	var badRequest errs.BadRequestError
	switch {
	case errors.As(err, &badRequest):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
}
