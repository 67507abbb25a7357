package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/metrics"
	"github.com/dukex/pagebot/pkg/mocks"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/dukex/pagebot/pkg/persistence/file"
	"github.com/dukex/pagebot/pkg/services"
	"github.com/dukex/pagebot/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(context.Context, string, string, models.OutboundPayload) (string, error) {
	return "sent", nil
}

type testApp struct {
	app   *fiber.App
	store persistence.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	locker := conversation.NewInMemoryLocker()
	collector := metrics.New()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	runner := engine.New(logger, store, engine.Collaborators{
		Actions: actions.New(logger, store.Customers()),
		Sender:  nopSender{},
	}, engine.WithLocker(locker), engine.WithMetrics(collector))

	dedup := conversation.NewInMemoryDeduplicator(time.Hour, time.Now)

	handlers := web.NewAPIHandlers(
		services.NewScenario(logger, store),
		services.NewNode(store),
		services.NewPublishing(logger, store, services.WithEventPublisher(bus)),
		services.NewConversation(logger, store, locker),
		runner,
		engine.NewIngestor(logger, dedup, bus, engine.WithIngestMetrics(collector)),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app, collector.Handler())

	return &testApp{app: app, store: store, bus: bus}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

const scenarioJSON = `{
	"page_id": "p1",
	"name": "price list",
	"priority": 2,
	"triggers": [{"type": "keyword", "match_mode": "contains", "value": "giá", "is_active": true}],
	"nodes": [
		{"id": "n1", "type": "text", "is_entry": true, "content": {"text": "100k"}},
		{"id": "n2", "type": "text", "content": {"text": "anything else?"}}
	],
	"links": [{"from_node_id": "n1", "to_node_id": "n2"}]
}`

func (a *testApp) createScenario(t *testing.T, body string) *models.Scenario {
	t.Helper()

	status, raw := a.do(t, http.MethodPost, "/scenarios", body)
	require.Equal(t, http.StatusCreated, status, string(raw))

	var scenario models.Scenario
	require.NoError(t, json.Unmarshal(raw, &scenario))

	return &scenario
}

func TestAPIHandlers_CreateScenario(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{name: "successful creation", body: scenarioJSON, expectedStatus: http.StatusCreated},
		{name: "missing name", body: `{"page_id": "p1"}`, expectedStatus: http.StatusBadRequest, expectedError: "Name"},
		{name: "missing page", body: `{"name": "x"}`, expectedStatus: http.StatusBadRequest, expectedError: "page"},
		{name: "unknown status", body: `{"name": "x", "page_id": "p1", "status": "paused"}`, expectedStatus: http.StatusBadRequest, expectedError: "Status"},
		{name: "invalid json", body: `{"name": `, expectedStatus: http.StatusBadRequest, expectedError: "Invalid JSON"},
		{
			name:           "unknown node type",
			body:           `{"name": "x", "page_id": "p1", "nodes": [{"id": "n1", "type": "video_call", "content": {}}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "video_call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)

			status, raw := a.do(t, http.MethodPost, "/scenarios", tt.body)
			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedError != "" {
				assert.Contains(t, string(raw), tt.expectedError)

				return
			}

			var scenario models.Scenario
			require.NoError(t, json.Unmarshal(raw, &scenario))
			assert.NotEmpty(t, scenario.ID)
			assert.Equal(t, models.ScenarioStatusActive, scenario.Status)
			assert.Equal(t, &models.TextContent{Text: "100k"}, scenario.Nodes[0].Content)
			assert.NotEmpty(t, scenario.Triggers[0].ID)
		})
	}
}

func TestAPIHandlers_ScenarioLifecycle(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.createScenario(t, scenarioJSON)

	status, raw := a.do(t, http.MethodGet, "/scenarios/"+created.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "price list")

	update := web.ScenarioRequest{Name: "renamed", Nodes: created.Nodes}
	status, raw = a.do(t, http.MethodPut, "/scenarios/"+created.ID, update)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), `"page_id":"p1"`)

	status, raw = a.do(t, http.MethodPatch, "/scenarios/"+created.ID+"/status", web.StatusRequest{Status: "inactive"})
	require.Equal(t, http.StatusOK, status)

	var summary web.ScenarioSummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "inactive", summary.Status)

	status, raw = a.do(t, http.MethodGet, "/scenarios?page_id=p1", nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Scenarios  []web.ScenarioSummary `json:"scenarios"`
		TotalCount int                   `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "renamed", list.Scenarios[0].Name)

	status, _ = a.do(t, http.MethodGet, "/scenarios", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodDelete, "/scenarios/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, raw = a.do(t, http.MethodGet, "/scenarios/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "scenario_not_found")
}

func TestAPIHandlers_PublishAndVersions(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.createScenario(t, scenarioJSON)
	base := "/scenarios/" + created.ID

	status, _ := a.do(t, http.MethodPost, base+"/publish", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw := a.do(t, http.MethodPost, base+"/publish", web.PublishRequest{CreatedBy: "alice"})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var version models.ScenarioVersion
	require.NoError(t, json.Unmarshal(raw, &version))
	assert.Equal(t, 1, version.Version)

	a.bus.AssertCalled(t, "Publish", mock.Anything, created.ID, mock.AnythingOfType("events.ScenarioPublished"))

	status, _ = a.do(t, http.MethodPost, base+"/publish", web.PublishRequest{CreatedBy: "bob"})
	require.Equal(t, http.StatusCreated, status)

	status, raw = a.do(t, http.MethodGet, base+"/versions", nil)
	require.Equal(t, http.StatusOK, status)

	var versions struct {
		Versions []web.VersionSummary `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(raw, &versions))
	require.Len(t, versions.Versions, 2)
	assert.Equal(t, "bob", versions.Versions[0].CreatedBy)

	status, _ = a.do(t, http.MethodGet, base+"/versions/1", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodGet, base+"/versions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = a.do(t, http.MethodGet, base+"/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "version_not_found")

	status, raw = a.do(t, http.MethodPost, base+"/versions/1/restore", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"published_version":2`)
}

func TestAPIHandlers_PublishRejectsInvalidDraft(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.createScenario(t, `{
		"page_id": "p1",
		"name": "broken",
		"nodes": [{"id": "n1", "type": "text", "is_entry": true, "content": {"text": "hi"}}],
		"links": [{"from_node_id": "n1", "to_node_id": "gone"}, {"from_node_id": "n1", "to_node_id": "n1", "condition": "size =="}]
	}`)

	status, raw := a.do(t, http.MethodPost, "/scenarios/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusBadRequest, status)

	var problem struct {
		Type   string `json:"type"`
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(raw, &problem))
	assert.Equal(t, "validation_error", problem.Type)
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "DANGLING_LINK", problem.Errors[0].Code)
	assert.Equal(t, "INVALID_CONDITION", problem.Errors[1].Code)

	status, _ = a.do(t, http.MethodPost, "/scenarios/"+created.ID+"/publish", web.PublishRequest{CreatedBy: "alice"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_NodesAndLinks(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.createScenario(t, scenarioJSON)
	base := "/scenarios/" + created.ID

	status, raw := a.do(t, http.MethodPost, base+"/nodes", `{"id": "n3", "type": "wait", "content": {"seconds": 30}}`)
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, _ = a.do(t, http.MethodPost, base+"/nodes", `{"id": "n3", "type": "text", "content": {"text": "dup"}}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = a.do(t, http.MethodPut, base+"/nodes/n3", `{"type": "text", "content": {"text": "later"}}`)
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = a.do(t, http.MethodGet, base+"/nodes/n3", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "later")

	status, raw = a.do(t, http.MethodPost, base+"/links", web.LinkRequest{FromNodeID: "n2", ToNodeID: "n3"})
	require.Equal(t, http.StatusCreated, status)

	var link models.Link
	require.NoError(t, json.Unmarshal(raw, &link))

	status, _ = a.do(t, http.MethodPost, base+"/links", web.LinkRequest{FromNodeID: "n2", ToNodeID: "n9"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodDelete, base+"/links/"+link.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodDelete, base+"/nodes/n3", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, raw = a.do(t, http.MethodGet, base+"/nodes/n3", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "node_not_found")
}

func TestAPIHandlers_TestRun(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)
	created := a.createScenario(t, scenarioJSON)
	base := "/scenarios/" + created.ID

	status, _ := a.do(t, http.MethodPost, base+"/test-run", engine.TestRunRequest{Message: "giá?", Simulate: true})
	assert.Equal(t, http.StatusNotFound, status)

	status, raw := a.do(t, http.MethodPost, base+"/test-run", engine.TestRunRequest{Message: "giá?", Simulate: true, Draft: true})
	require.Equal(t, http.StatusOK, status, string(raw))

	var result engine.TestRunResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "100k\n\nanything else?", result.Messages[1].Text)
	assert.NotEmpty(t, result.Steps)

	status, _ = a.do(t, http.MethodPost, base+"/test-run", engine.TestRunRequest{Simulate: true})
	assert.Equal(t, http.StatusBadRequest, status)

	conversations, err := a.store.Conversations().ListByPage(t.Context(), "p1")
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestAPIHandlers_IngestWebhook(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	body := `{"object": "page", "entry": [{"id": "p1", "messaging": [
		{"sender": {"id": "u1"}, "recipient": {"id": "p1"}, "timestamp": 1772355600000, "message": {"mid": "m1", "text": "hi"}}
	]}]}`

	status, raw := a.do(t, http.MethodPost, "/webhook/messages", body)
	require.Equal(t, http.StatusOK, status)

	var result engine.IngestResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, engine.IngestResult{Accepted: 1}, result)

	status, raw = a.do(t, http.MethodPost, "/webhook/messages", body)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, engine.IngestResult{Duplicates: 1}, result)

	a.bus.AssertNumberOfCalls(t, "Publish", 1)
	a.bus.AssertCalled(t, "Publish", mock.Anything, "p1:u1", mock.MatchedBy(func(event events.InboundMessageReceived) bool {
		return event.Message.MID == "m1"
	}))

	status, _ = a.do(t, http.MethodPost, "/webhook/messages", `{"object": "user", "entry": []}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/webhook/messages", `{"object":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "messages_received_total 1")
	assert.Contains(t, string(raw), "duplicate_deliveries_total 1")
}

func TestAPIHandlers_Conversations(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	conv := &models.Conversation{
		ID:        "c1",
		PageID:    "p1",
		PSID:      "u1",
		Status:    models.ConversationStatusPending,
		Context:   map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, a.store.Conversations().Save(t.Context(), conv))

	status, raw := a.do(t, http.MethodPost, "/conversations/c1/reactivate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"status":"active"`)

	status, raw = a.do(t, http.MethodPost, "/conversations/c1/reactivate", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(raw), "conflict")

	status, raw = a.do(t, http.MethodPost, "/conversations/c1/close", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"status":"closed"`)

	status, _ = a.do(t, http.MethodPost, "/conversations/missing/close", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	a := setupTestApp(t)

	status, raw := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status)

	var health map[string]any
	require.NoError(t, json.Unmarshal(raw, &health))
	assert.Equal(t, "healthy", health["status"])
}
