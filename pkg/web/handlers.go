// Package web provides HTTP handlers and REST API endpoints for scenario management, test runs,
// webhook ingestion and conversation handoff.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	scenarioService     *services.Scenario
	nodeService         *services.Node
	publishingService   *services.Publishing
	conversationService *services.Conversation
	engine              *engine.Engine
	ingestor            *engine.Ingestor
	validator           *validator.Validate
}

func NewAPIHandlers(
	scenarioService *services.Scenario,
	nodeService *services.Node,
	publishingService *services.Publishing,
	conversationService *services.Conversation,
	engine *engine.Engine,
	ingestor *engine.Ingestor,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		scenarioService:     scenarioService,
		nodeService:         nodeService,
		publishingService:   publishingService,
		conversationService: conversationService,
		engine:              engine,
		ingestor:            ingestor,
		validator:           validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.scenarioService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "pagebot API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "pagebot API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetScenarios(c fiber.Ctx) error {
	scenarios, err := h.scenarioService.List(c.Context(), c.Query("page_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	summaries := make([]ScenarioSummary, 0, len(scenarios))
	for _, scenario := range scenarios {
		summaries = append(summaries, TransformScenarioSummary(scenario))
	}

	return c.JSON(fiber.Map{
		"scenarios":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetScenario(c fiber.Ctx) error {
	scenario, err := h.scenarioService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(scenario)
}

func (h *APIHandlers) CreateScenario(c fiber.Ctx) error {
	var req ScenarioRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.scenarioService.Create(c.Context(), req.Scenario())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateScenario(c fiber.Ctx) error {
	var req ScenarioRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.scenarioService.Update(c.Context(), c.Params("id"), req.Scenario())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) SetScenarioStatus(c fiber.Ctx) error {
	var req StatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.scenarioService.SetStatus(c.Context(), c.Params("id"), models.ScenarioStatus(req.Status))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformScenarioSummary(updated))
}

func (h *APIHandlers) DeleteScenario(c fiber.Ctx) error {
	err := h.scenarioService.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ValidateScenario(c fiber.Ctx) error {
	err := h.publishingService.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) PublishScenario(c fiber.Ctx) error {
	var req PublishRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	version, err := h.publishingService.Publish(c.Context(), c.Params("id"), req.CreatedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) GetVersions(c fiber.Ctx) error {
	versions, err := h.publishingService.ListVersions(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	summaries := make([]VersionSummary, 0, len(versions))
	for _, version := range versions {
		summaries = append(summaries, TransformVersionSummary(version))
	}

	return c.JSON(fiber.Map{"versions": summaries})
}

func (h *APIHandlers) GetVersion(c fiber.Ctx) error {
	number, err := strconv.Atoi(c.Params("version"))
	if err != nil || number < 1 {
		return badRequest(c, "version must be a positive integer")
	}

	version, err := h.publishingService.GetVersion(c.Context(), c.Params("id"), number)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

func (h *APIHandlers) RestoreVersion(c fiber.Ctx) error {
	number, err := strconv.Atoi(c.Params("version"))
	if err != nil || number < 1 {
		return badRequest(c, "version must be a positive integer")
	}

	restored, err := h.publishingService.Restore(c.Context(), c.Params("id"), number)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(restored)
}

func (h *APIHandlers) TestRun(c fiber.Ctx) error {
	var req engine.TestRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if req.Message == "" && req.Payload == "" {
		return badRequest(c, "message or payload is required")
	}

	result, err := h.engine.TestRun(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// IngestWebhook accepts a verified Messenger webhook delivery. Processing happens on the workers.
func (h *APIHandlers) IngestWebhook(c fiber.Ctx) error {
	result, err := h.ingestor.IngestWebhook(c.Context(), c.Body())
	if err != nil {
		if engine.IsStorageUnavailable(err) || result != nil {
			return unavailable(c, err)
		}

		return badRequest(c, err.Error())
	}

	return c.JSON(result)
}

func (h *APIHandlers) ReactivateConversation(c fiber.Ctx) error {
	conv, err := h.conversationService.Reactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conv)
}

func (h *APIHandlers) CloseConversation(c fiber.Ctx) error {
	conv, err := h.conversationService.Close(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(conv)
}
