package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/cmd"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// graphServer records the Send API requests it receives.
type graphServer struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []string
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()

	g := &graphServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)

		g.mu.Lock()
		g.bodies = append(g.bodies, string(raw))
		g.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"recipient_id": "u1", "message_id": "out-1"}`))
	}))
	t.Cleanup(g.Close)

	return g
}

func (g *graphServer) received() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.bodies...)
}

func setupTestRuntime(t *testing.T, graphURL string) *cmd.Runtime {
	t.Helper()

	runtime, err := cmd.Build(t.Context(), testLogger(), cmd.Config{
		ServiceName: "pagebot-api-test",
		DatabaseURL: t.TempDir(),
		EventBus:    cmd.EventBusMemory,
		GraphAPIURL: graphURL,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		err := runtime.Close(t.Context())
		if err != nil {
			t.Logf("Failed to close runtime: %v", err)
		}
	})

	return runtime
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(raw)
}

func TestAPI_RootAndHealthChecks(t *testing.T) {
	t.Parallel()

	app := NewAPI(testLogger(), setupTestRuntime(t, "")).App()

	status, body := do(t, app, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pagebot API", body)

	status, body = do(t, app, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "healthy")

	status, body = do(t, app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "pagebot_")
}

func TestAPI_WebhookRepliesThroughEmbeddedWorker(t *testing.T) {
	t.Parallel()

	graph := newGraphServer(t)
	runtime := setupTestRuntime(t, graph.URL)

	require.NoError(t, runtime.Store.Pages().Save(t.Context(), &models.Page{ID: "p1", Name: "shop", AccessToken: "token"}))

	stop, err := startEmbedded(t.Context(), runtime)
	require.NoError(t, err)
	t.Cleanup(stop)

	app := NewAPI(testLogger(), runtime).App()

	status, body := do(t, app, http.MethodPost, "/scenarios", `{
		"page_id": "p1",
		"name": "price list",
		"status": "active",
		"triggers": [{"type": "keyword", "match_mode": "contains", "value": "giá", "is_active": true}],
		"nodes": [{"id": "n1", "type": "text", "is_entry": true, "content": {"text": "100k"}}]
	}`)
	require.Equal(t, http.StatusCreated, status, body)

	var scenario models.Scenario
	require.NoError(t, json.Unmarshal([]byte(body), &scenario))

	status, body = do(t, app, http.MethodPost, "/scenarios/"+scenario.ID+"/publish", `{"created_by": "alice"}`)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = do(t, app, http.MethodPost, "/webhook/messages", `{"object": "page", "entry": [{"id": "p1", "messaging": [
		{"sender": {"id": "u1"}, "recipient": {"id": "p1"}, "timestamp": 1772355600000, "message": {"mid": "m1", "text": "Giá bao nhiêu?"}}
	]}]}`)
	require.Equal(t, http.StatusOK, status, body)

	assert.Eventually(t, func() bool {
		return len(graph.received()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, graph.received()[0], "100k")

	conversation, err := runtime.Store.Conversations().GetByKey(t.Context(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", conversation.PSID)
}
