package web

import (
	"github.com/dukex/pagebot/pkg/models"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) CreateScenarioNode(c fiber.Ctx) error {
	var node models.Node
	if err := c.Bind().JSON(&node); err != nil {
		return badRequest(c, "Invalid node: "+err.Error())
	}

	created, err := h.nodeService.CreateNode(c.Context(), c.Params("id"), &node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetScenarioNode(c fiber.Ctx) error {
	node, err := h.nodeService.GetNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(node)
}

func (h *APIHandlers) UpdateScenarioNode(c fiber.Ctx) error {
	var node models.Node
	if err := c.Bind().JSON(&node); err != nil {
		return badRequest(c, "Invalid node: "+err.Error())
	}

	updated, err := h.nodeService.UpdateNode(c.Context(), c.Params("id"), c.Params("nodeId"), &node)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteScenarioNode(c fiber.Ctx) error {
	err := h.nodeService.DeleteNode(c.Context(), c.Params("id"), c.Params("nodeId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateScenarioLink(c fiber.Ctx) error {
	var req LinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	link, err := h.nodeService.CreateLink(c.Context(), c.Params("id"), &models.Link{
		FromNodeID: req.FromNodeID,
		ToNodeID:   req.ToNodeID,
		Condition:  req.Condition,
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(link)
}

func (h *APIHandlers) DeleteScenarioLink(c fiber.Ctx) error {
	err := h.nodeService.DeleteLink(c.Context(), c.Params("id"), c.Params("linkId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
