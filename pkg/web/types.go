// Package web provides HTTP request and response types for the scenario editor API.
package web

import (
	"time"

	"github.com/dukex/pagebot/pkg/models"
)

// ScenarioRequest is the body of scenario create and replace calls. The page may be omitted on
// replace.
type ScenarioRequest struct {
	PageID         string              `json:"page_id"`
	Name           string              `json:"name"                       validate:"required,min=1"`
	Description    string              `json:"description,omitempty"`
	ProductGroupID string              `json:"product_group_id,omitempty"`
	Status         string              `json:"status,omitempty"           validate:"omitempty,oneof=active inactive"`
	Priority       int                 `json:"priority"                   validate:"min=0"`
	AIEnabled      bool                `json:"ai_enabled"`
	OpenAIConfigID string              `json:"openai_config_id,omitempty"`
	Triggers       []*models.Trigger   `json:"triggers"`
	SubScripts     []*models.SubScript `json:"sub_scripts"`
	Nodes          []*models.Node      `json:"nodes"`
	Links          []*models.Link      `json:"links"`
	Variables      []*models.Variable  `json:"variables"`
}

// Scenario converts the request into a draft.
func (r *ScenarioRequest) Scenario() *models.Scenario {
	return &models.Scenario{
		PageID:         r.PageID,
		Name:           r.Name,
		Description:    r.Description,
		ProductGroupID: r.ProductGroupID,
		Status:         models.ScenarioStatus(r.Status),
		Priority:       r.Priority,
		AIEnabled:      r.AIEnabled,
		OpenAIConfigID: r.OpenAIConfigID,
		Triggers:       r.Triggers,
		SubScripts:     r.SubScripts,
		Nodes:          r.Nodes,
		Links:          r.Links,
		Variables:      r.Variables,
	}
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

type LinkRequest struct {
	FromNodeID string `json:"from_node_id" validate:"required"`
	ToNodeID   string `json:"to_node_id"   validate:"required"`
	Condition  string `json:"condition,omitempty"`
	OrderIndex int    `json:"order_index"  validate:"min=0"`
}

type PublishRequest struct {
	CreatedBy string `json:"created_by" validate:"required"`
}

// ScenarioSummary is the list view of a scenario.
type ScenarioSummary struct {
	ID               string `json:"id"`
	PageID           string `json:"page_id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	Priority         int    `json:"priority"`
	AIEnabled        bool   `json:"ai_enabled"`
	PublishedVersion int    `json:"published_version"`
	Published        bool   `json:"published"`
	Triggers         int    `json:"triggers"`
	SubScripts       int    `json:"sub_scripts"`
	Nodes            int    `json:"nodes"`
}

func TransformScenarioSummary(scenario *models.Scenario) ScenarioSummary {
	return ScenarioSummary{
		ID:               scenario.ID,
		PageID:           scenario.PageID,
		Name:             scenario.Name,
		Status:           string(scenario.Status),
		Priority:         scenario.Priority,
		AIEnabled:        scenario.AIEnabled,
		PublishedVersion: scenario.PublishedVersion,
		Published:        scenario.PublishedVersion > 0,
		Triggers:         len(scenario.Triggers),
		SubScripts:       len(scenario.SubScripts),
		Nodes:            len(scenario.Nodes),
	}
}

// VersionSummary is the list view of a published version, without its snapshot.
type VersionSummary struct {
	Version   int    `json:"version"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func TransformVersionSummary(version *models.ScenarioVersion) VersionSummary {
	return VersionSummary{
		Version:   version.Version,
		CreatedBy: version.CreatedBy,
		CreatedAt: version.CreatedAt.UTC().Format(time.RFC3339),
	}
}
