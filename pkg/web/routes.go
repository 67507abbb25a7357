package web

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

// Register mounts every API route on app. metrics may be nil.
func (h *APIHandlers) Register(app fiber.Router, metrics http.Handler) {
	s := app.Group("/scenarios")
	s.Get("/", h.GetScenarios)
	s.Post("/", h.CreateScenario)
	s.Get("/:id", h.GetScenario)
	s.Put("/:id", h.UpdateScenario)
	s.Delete("/:id", h.DeleteScenario)
	s.Patch("/:id/status", h.SetScenarioStatus)
	s.Post("/:id/validate", h.ValidateScenario)
	s.Post("/:id/publish", h.PublishScenario)
	s.Get("/:id/versions", h.GetVersions)
	s.Get("/:id/versions/:version", h.GetVersion)
	s.Post("/:id/versions/:version/restore", h.RestoreVersion)
	s.Post("/:id/test-run", h.TestRun)

	s.Post("/:id/nodes", h.CreateScenarioNode)
	s.Get("/:id/nodes/:nodeId", h.GetScenarioNode)
	s.Put("/:id/nodes/:nodeId", h.UpdateScenarioNode)
	s.Delete("/:id/nodes/:nodeId", h.DeleteScenarioNode)
	s.Post("/:id/links", h.CreateScenarioLink)
	s.Delete("/:id/links/:linkId", h.DeleteScenarioLink)

	app.Post("/webhook/messages", h.IngestWebhook)

	c := app.Group("/conversations")
	c.Post("/:id/reactivate", h.ReactivateConversation)
	c.Post("/:id/close", h.CloseConversation)

	app.Get("/health", h.HealthCheck)

	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}
}
