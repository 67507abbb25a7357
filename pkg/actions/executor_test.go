package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dukex/pagebot/pkg/mocks"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEnv() Env {
	return Env{
		Scenario: &models.Scenario{
			ID: "scenario-1",
			Variables: []*models.Variable{
				{Key: "budget", Type: models.VariableTypeNumber},
				{Key: "order_id", Type: models.VariableTypeString},
			},
		},
		Conversation: &models.Conversation{
			ID:         "conv-1",
			PageID:     "page-1",
			PSID:       "psid-1",
			CustomerID: "customer-1",
			Status:     models.ConversationStatusActive,
			Context:    map[string]any{"budget": 100.0},
		},
		Message: &models.InboundMessage{PageID: "page-1", SenderID: "psid-1", Text: "500k", MID: "m-1"},
	}
}

func TestExecute_AddTag(t *testing.T) {
	t.Parallel()

	customers := &mocks.MockCustomerRepository{}
	customers.On("AddTag", mock.Anything, "customer-1", "vip").Return(nil).Once()

	executor := New(newTestLogger(), customers)

	result := executor.Execute(context.Background(), &models.Action{Type: models.ActionTypeAddTag, TagName: " vip "}, newEnv())

	assert.Equal(t, models.ActionStatusSuccess, result.Status)
	customers.AssertExpectations(t)
}

func TestExecute_AddTagFailures(t *testing.T) {
	t.Parallel()

	customers := &mocks.MockCustomerRepository{}
	customers.On("AddTag", mock.Anything, "customer-1", "vip").Return(errors.New("disk full"))

	executor := New(newTestLogger(), customers)
	action := &models.Action{Type: models.ActionTypeAddTag, TagName: "vip"}

	result := executor.Execute(context.Background(), action, newEnv())
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "disk full")

	env := newEnv()
	env.Conversation.CustomerID = ""
	result = executor.Execute(context.Background(), action, env)
	assert.True(t, result.Failed())

	env = newEnv()
	env.Simulate = true
	result = executor.Execute(context.Background(), action, env)
	assert.Equal(t, models.ActionStatusSkipped, result.Status)
	customers.AssertNumberOfCalls(t, "AddTag", 1)
}

func TestExecute_SetVariable(t *testing.T) {
	t.Parallel()

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{})

	t.Run("coerces to declared type", func(t *testing.T) {
		t.Parallel()

		env := newEnv()
		result := executor.Execute(context.Background(),
			&models.Action{Type: models.ActionTypeSetVariable, Key: "budget", Value: "250"}, env)

		assert.Equal(t, models.ActionStatusSuccess, result.Status)
		assert.Equal(t, 250.0, env.Conversation.Context["budget"])
	})

	t.Run("coercion failure keeps prior value", func(t *testing.T) {
		t.Parallel()

		env := newEnv()
		result := executor.Execute(context.Background(),
			&models.Action{Type: models.ActionTypeSetVariable, Key: "budget", Value: "a lot"}, env)

		assert.True(t, result.Failed())
		assert.Equal(t, 100.0, env.Conversation.Context["budget"])
	})

	t.Run("renders templates against the message", func(t *testing.T) {
		t.Parallel()

		env := newEnv()
		result := executor.Execute(context.Background(),
			&models.Action{Type: models.ActionTypeSetVariable, Key: "last_answer", Value: "{{.message.text}}"}, env)

		assert.Equal(t, models.ActionStatusSuccess, result.Status)
		assert.Equal(t, "500k", env.Conversation.Context["last_answer"])
	})
}

func TestExecute_TransferToAgent(t *testing.T) {
	t.Parallel()

	env := newEnv()
	env.Conversation.FlowState = &models.FlowState{ScenarioID: "scenario-1", CurrentNodeID: "n1"}

	result := New(newTestLogger(), &mocks.MockCustomerRepository{}).Execute(context.Background(),
		&models.Action{Type: models.ActionTypeTransferToAgent, Note: "wants a refund"}, env)

	assert.Equal(t, models.ActionStatusSuccess, result.Status)
	assert.Equal(t, models.ConversationStatusPending, env.Conversation.Status)
	assert.Nil(t, env.Conversation.FlowState)
}

func TestExecute_UnknownType(t *testing.T) {
	t.Parallel()

	result := New(newTestLogger(), &mocks.MockCustomerRepository{}).Execute(context.Background(),
		&models.Action{Type: "send_sms"}, newEnv())

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "unknown action type")
}

func TestExecute_WebhookFireAndForget(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received string
		method   string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		received = string(body)
		method = r.Method
		mu.Unlock()

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{})

	ctx, cancel := context.WithCancel(context.Background())
	result := executor.Execute(ctx, &models.Action{
		Type: models.ActionTypeCallWebhook,
		URL:  server.URL + "/leads",
		Body: `{"psid":"{{.conversation.psid}}","text":"{{.message.text}}"}`,
	}, newEnv())
	cancel()

	assert.Equal(t, models.ActionStatusDispatched, result.Status)

	executor.Wait()

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, http.MethodPost, method)
	assert.JSONEq(t, `{"psid":"psid-1","text":"500k"}`, received)
}

func TestExecute_WebhookFailureReported(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var failures atomic.Int32

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{},
		WithFailureHandler(func(_ context.Context, failure Failure) {
			assert.Equal(t, "conv-1", failure.ConversationID)
			assert.Equal(t, "scenario-1", failure.ScenarioID)
			assert.True(t, failure.Result.Failed())
			failures.Add(1)
		}))

	result := executor.Execute(context.Background(),
		&models.Action{Type: models.ActionTypeCallWebhook, URL: server.URL, Method: "get"}, newEnv())

	assert.Equal(t, models.ActionStatusDispatched, result.Status)

	executor.Wait()
	assert.Equal(t, int32(1), failures.Load())
}

func TestExecute_WebhookBlocking(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order":{"id":1234,"items":[]}}`))
	}))
	defer server.Close()

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{})

	env := newEnv()
	result := executor.Execute(context.Background(), &models.Action{
		Type:         models.ActionTypeCallWebhook,
		URL:          server.URL + "/orders",
		Blocking:     true,
		ResponsePath: ".order.id",
		SaveTo:       "order_id",
	}, env)

	require.Equal(t, models.ActionStatusSuccess, result.Status, result.Error)
	assert.Equal(t, "1234", env.Conversation.Context["order_id"])

	result = executor.Execute(context.Background(), &models.Action{
		Type:     models.ActionTypeCallWebhook,
		URL:      server.URL + "/fail",
		Blocking: true,
	}, env)

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "502")
}

func TestExecute_WebhookSkippedWhenSimulated(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{})

	env := newEnv()
	env.Simulate = true

	result := executor.Execute(context.Background(),
		&models.Action{Type: models.ActionTypeCallWebhook, URL: server.URL}, env)

	executor.Wait()

	assert.Equal(t, models.ActionStatusSkipped, result.Status)
	assert.Equal(t, int32(0), hits.Load())
}

func TestExecute_RecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	executor := New(newTestLogger(), &mocks.MockCustomerRepository{}, WithTracer(provider.Tracer("test")))

	result := executor.Execute(context.Background(), &models.Action{
		Type:     models.ActionTypeCallWebhook,
		URL:      server.URL + "/orders",
		Method:   http.MethodPost,
		Blocking: true,
	}, newEnv())
	require.Equal(t, models.ActionStatusFailed, result.Status)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	webhook, execute := spans[0], spans[1]
	assert.Equal(t, "actions.webhook", webhook.Name())
	assert.Equal(t, "actions.execute", execute.Name())
	assert.Equal(t, execute.SpanContext().SpanID(), webhook.Parent().SpanID())
	assert.Equal(t, codes.Error, webhook.Status().Code)
	assert.Equal(t, codes.Error, execute.Status().Code)
	assert.Contains(t, execute.Attributes(), attribute.String(otelhelper.ActionTypeKey, string(models.ActionTypeCallWebhook)))
	assert.Contains(t, execute.Attributes(), attribute.String(otelhelper.ScenarioIDKey, "scenario-1"))
	assert.Contains(t, webhook.Attributes(), attribute.String("url.full", server.URL+"/orders"))
}
