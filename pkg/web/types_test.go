package web

import (
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestScenarioRequest_Scenario(t *testing.T) {
	t.Parallel()

	req := ScenarioRequest{
		PageID:    "p1",
		Name:      "welcome",
		Status:    "inactive",
		Priority:  3,
		AIEnabled: true,
		Nodes:     []*models.Node{{ID: "n1", Type: models.NodeTypeText, Content: &models.TextContent{Text: "hi"}}},
	}

	scenario := req.Scenario()

	assert.Empty(t, scenario.ID)
	assert.Equal(t, models.ScenarioStatusInactive, scenario.Status)
	assert.Equal(t, 3, scenario.Priority)
	assert.True(t, scenario.AIEnabled)
	assert.Len(t, scenario.Nodes, 1)
}

func TestTransformScenarioSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		scenario  *models.Scenario
		published bool
	}{
		{
			name:     "draft only",
			scenario: &models.Scenario{ID: "s1", Name: "draft", Status: models.ScenarioStatusActive},
		},
		{
			name: "published",
			scenario: &models.Scenario{
				ID:               "s2",
				Name:             "live",
				Status:           models.ScenarioStatusActive,
				PublishedVersion: 4,
				Triggers:         []*models.Trigger{{ID: "t1"}, {ID: "t2"}},
				Nodes:            []*models.Node{{ID: "n1"}},
			},
			published: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			summary := TransformScenarioSummary(tt.scenario)

			assert.Equal(t, tt.scenario.ID, summary.ID)
			assert.Equal(t, tt.published, summary.Published)
			assert.Equal(t, tt.scenario.PublishedVersion, summary.PublishedVersion)
			assert.Equal(t, len(tt.scenario.Triggers), summary.Triggers)
			assert.Equal(t, len(tt.scenario.Nodes), summary.Nodes)
		})
	}
}

func TestTransformVersionSummary(t *testing.T) {
	t.Parallel()

	summary := TransformVersionSummary(&models.ScenarioVersion{
		Version:   2,
		CreatedBy: "alice",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("ICT", 7*3600)),
		Snapshot:  &models.Scenario{ID: "s1"},
	})

	assert.Equal(t, VersionSummary{Version: 2, CreatedBy: "alice", CreatedAt: "2026-03-01T02:00:00Z"}, summary)
}
