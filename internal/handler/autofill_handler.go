package handler

import (
	"errors"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/middleware"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/arturoeanton/go-semantic-autofill/internal/service"
	"github.com/gofiber/fiber/v3"
)

// AutofillHandler handles semantic autofill queries.
type AutofillHandler struct {
	autofill *service.AutofillService
}

// NewAutofillHandler creates a new autofill handler.
func NewAutofillHandler(autofill *service.AutofillService) *AutofillHandler {
	return &AutofillHandler{autofill: autofill}
}

// Register sets up autofill routes.
func (h *AutofillHandler) Register(api fiber.Router) {
	api.Post("/autofill", h.Autofill)
}

// Autofill resolves suggestions for a set of field labels, scoped to the
// current user and any supplied site/path/form filters.
func (h *AutofillHandler) Autofill(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Keys      []string `json:"keys"`
		Site      string   `json:"site"`
		Path      string   `json:"path"`
		FormID    *string  `json:"form_id"`
		Threshold *float64 `json:"threshold"`
		Multiple  bool     `json:"multiple"`
		Limit     int      `json:"limit"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Omitted threshold falls back to a conservative default rather
	// than zero, which would accept every hit.
	threshold := 0.8
	if body.Threshold != nil {
		threshold = *body.Threshold
	}

	suggestions, err := h.autofill.Autofill(c.Context(), uc.UserID, service.AutofillRequest{
		Keys: body.Keys,
		Scope: domain.AutofillScope{
			Site:   body.Site,
			Path:   body.Path,
			FormID: body.FormID,
		},
		Threshold: threshold,
		Multiple:  body.Multiple,
		Limit:     body.Limit,
	})
	if err != nil {
		if errors.Is(err, port.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"suggestions": suggestions})
}
