package web

import (
	"errors"

	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/dukex/pagebot/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func unavailable(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(503).
		WithInstance(c.Path()).
		WithType("storage_unavailable").
		WithError(err)

	return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service, engine and persistence errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNodeNotFound):
		return notFound(c, "node_not_found", "node not found")

	case persistence.IsScenarioNotFound(err):
		return notFound(c, "scenario_not_found", "scenario not found")

	case persistence.IsVersionNotFound(err):
		return notFound(c, "version_not_found", "scenario version not found")

	case errors.Is(err, engine.ErrScenarioNotPublished):
		return notFound(c, "version_not_found", "scenario has no published version")

	case persistence.IsConversationNotFound(err):
		return notFound(c, "conversation_not_found", "conversation not found")

	case services.IsValidationError(err), errors.Is(err, messenger.ErrNotPageObject):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		var errs services.ValidationErrors
		if errors.As(err, &errs) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"type":     problem.Type,
				"title":    problem.Title,
				"status":   problem.Status,
				"detail":   problem.Detail,
				"instance": problem.Instance,
				"errors":   errs,
			})
		}

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case engine.IsStorageUnavailable(err):
		return unavailable(c, err)

	default:
		return internalError(c, err)
	}
}
