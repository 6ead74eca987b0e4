package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/caseflow/caseflow-backend/internal/repository"
)

// RequirementHandlers reads the requirements the assistant's tools
// maintain. Writes go through the assistant; the portal only renders.
type RequirementHandlers struct {
	requirements repository.RequirementRepository
	log          *logrus.Entry
}

// NewRequirementHandlers creates the handler set.
func NewRequirementHandlers(requirements repository.RequirementRepository, log *logrus.Entry) *RequirementHandlers {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RequirementHandlers{requirements: requirements, log: log}
}

// List handles GET /api/v1/requirements
func (h *RequirementHandlers) List(c *fiber.Ctx) error {
	requirements, err := h.requirements.List(c.Context())
	if err != nil {
		h.log.WithError(err).Error("failed to list requirements")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list requirements",
		})
	}
	return c.JSON(fiber.Map{"requirements": requirements})
}

// Get handles GET /api/v1/requirements/:id
func (h *RequirementHandlers) Get(c *fiber.Ctx) error {
	requirement, err := h.requirements.Get(c.Context(), c.Params("id"))
	if err != nil {
		h.log.WithError(err).Error("failed to load requirement")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load requirement",
		})
	}
	if requirement == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "requirement not found",
		})
	}
	return c.JSON(requirement)
}
