package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/template"
	"github.com/itchyny/gojq"
	"go.opentelemetry.io/otel/attribute"
)

type webhookRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func (e *Executor) renderWebhook(action *models.Action, env Env) (*webhookRequest, error) {
	data := templateData(env)

	url, err := template.RenderString(action.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url: %w", err)
	}

	body := ""
	if action.Body != "" {
		body, err = template.RenderString(action.Body, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render body: %w", err)
		}
	}

	headers := make(map[string]string, len(action.Headers))

	for key, value := range action.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			headers[key] = value
		} else {
			headers[key] = rendered
		}
	}

	if body != "" && headers["Content-Type"] == "" {
		headers["Content-Type"] = "application/json"
	}

	method := strings.ToUpper(action.Method)
	if method == "" {
		method = http.MethodPost
	}

	timeout := e.timeout
	if action.TimeoutSeconds > 0 {
		timeout = time.Duration(action.TimeoutSeconds) * time.Second
	}

	return &webhookRequest{
		URL:     url,
		Method:  method,
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}, nil
}

func (e *Executor) callWebhook(ctx context.Context, action *models.Action, env Env, result *models.ActionResult) error {
	request, err := e.renderWebhook(action, env)
	if err != nil {
		return err
	}

	result.Output = map[string]any{"url": request.URL, "method": request.Method}

	if env.Simulate {
		result.Status = models.ActionStatusSkipped

		return nil
	}

	if action.Blocking {
		return e.callBlocking(ctx, action, env, request, result)
	}

	failure := Failure{
		ConversationID: env.Conversation.ID,
		Action:         action,
	}
	if env.Scenario != nil {
		failure.ScenarioID = env.Scenario.ID
	}

	e.inflight.Add(1)

	go func() {
		defer e.inflight.Done()

		background := context.WithoutCancel(ctx)
		started := e.now()

		_, err := e.send(background, request)
		if err == nil {
			e.logger.DebugContext(background, "webhook delivered", "url", request.URL)

			return
		}

		e.logger.ErrorContext(background, "webhook failed",
			"url", request.URL,
			"conversation_id", failure.ConversationID,
			"error", err)
		e.metrics.Action(string(models.ActionTypeCallWebhook), string(models.ActionStatusFailed))

		if e.onFailure != nil {
			failure.Result = &models.ActionResult{
				Type:       models.ActionTypeCallWebhook,
				Status:     models.ActionStatusFailed,
				Error:      err.Error(),
				Output:     map[string]any{"url": request.URL, "method": request.Method},
				StartedAt:  started,
				DurationMs: e.now().Sub(started).Milliseconds(),
			}
			e.onFailure(background, failure)
		}
	}()

	result.Status = models.ActionStatusDispatched

	return nil
}

func (e *Executor) callBlocking(
	ctx context.Context,
	action *models.Action,
	env Env,
	request *webhookRequest,
	result *models.ActionResult,
) error {
	body, err := e.send(ctx, request)
	if err != nil {
		return err
	}

	if action.ResponsePath == "" || action.SaveTo == "" {
		return nil
	}

	value, err := extract(body, action.ResponsePath)
	if err != nil {
		return err
	}

	coerced, err := Assign(env.Scenario, env.Conversation, action.SaveTo, value)
	if err != nil {
		return err
	}

	result.Output["value"] = coerced

	return nil
}

func (e *Executor) send(ctx context.Context, request *webhookRequest) ([]byte, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "actions.webhook",
		attribute.String(otelhelper.ActionTypeKey, string(models.ActionTypeCallWebhook)),
		attribute.String("http.request.method", request.Method),
		attribute.String("url.full", request.URL),
	)
	defer span.End()

	body, err := e.do(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return body, err
}

func (e *Executor) do(ctx context.Context, request *webhookRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, request.Timeout)
	defer cancel()

	req := e.client.R().
		SetContext(ctx).
		SetHeaders(request.Headers)

	if request.Body != "" {
		req.SetBody(request.Body)
	}

	resp, err := req.Execute(request.Method, request.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode())
	}

	return resp.Body(), nil
}

// extract runs a jq expression over a JSON response body and returns its first result.
func extract(body []byte, path string) (any, error) {
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid response path %q: %w", path, err)
	}

	var decoded any

	err = json.Unmarshal(body, &decoded)
	if err != nil {
		return nil, fmt.Errorf("webhook response is not json: %w", err)
	}

	iter := query.Run(decoded)

	value, ok := iter.Next()
	if !ok {
		return nil, nil
	}

	if err, isErr := value.(error); isErr {
		return nil, fmt.Errorf("response path %q: %w", path, err)
	}

	return value, nil
}
