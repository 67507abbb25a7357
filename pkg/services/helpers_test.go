package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/dukex/pagebot/pkg/persistence/file"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

// validScenario is a publishable draft: a keyword trigger, a quick reply and two answers.
func validScenario() *models.Scenario {
	return &models.Scenario{
		PageID:   "p1",
		Name:     "shop",
		Status:   models.ScenarioStatusActive,
		Priority: 1,
		Triggers: []*models.Trigger{{
			Type:      models.TriggerTypeKeyword,
			MatchMode: models.MatchModeContains,
			Value:     "menu",
			IsActive:  true,
		}},
		SubScripts: []*models.SubScript{{
			Name:                "price",
			TriggerKeywords:     []string{"giá"},
			ResponseTemplate:    "100k",
			Status:              models.SubScriptStatusActive,
			MatchMode:           models.MatchModeContains,
			ConfidenceThreshold: 0.5,
		}},
		Nodes: []*models.Node{
			{ID: "ask", Type: models.NodeTypeQuickReply, IsEntry: true, Content: &models.QuickReplyContent{
				Text: "Size?",
				Options: []models.QuickReplyOption{
					{Title: "M", NextNodeID: "m"},
					{Title: "L", NextNodeID: "l"},
				},
				SaveTo: "size",
			}},
			{ID: "m", Type: models.NodeTypeText, Content: &models.TextContent{Text: "M it is"}},
			{ID: "l", Type: models.NodeTypeText, Content: &models.TextContent{Text: "L it is"}},
		},
		Links: []*models.Link{
			{FromNodeID: "m", ToNodeID: "l", Condition: `size == "never"`},
		},
		Variables: []*models.Variable{
			{Key: "size", Type: models.VariableTypeString, DefaultValue: "M"},
		},
	}
}
