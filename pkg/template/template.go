// Package template renders response templates and webhook payloads against the conversation context.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/pagebot/pkg/models"
)

const noValue = "<no value>"

// Data builds the template root for a conversation: .vars, .message and .conversation.
func Data(conversation *models.Conversation, bindings map[string]any, message *models.InboundMessage) map[string]any {
	data := map[string]any{
		"vars": bindings,
	}

	if conversation != nil {
		data["conversation"] = map[string]any{
			"id":          conversation.ID,
			"page_id":     conversation.PageID,
			"psid":        conversation.PSID,
			"customer_id": conversation.CustomerID,
			"status":      string(conversation.Status),
		}
	}

	if message != nil {
		data["message"] = map[string]any{
			"text":      message.Text,
			"mid":       message.MID,
			"payload":   message.Payload,
			"sender_id": message.SenderID,
			"page_id":   message.PageID,
		}
	}

	return data
}

func parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
			"json": func(value any) (string, error) {
				data, err := json.Marshal(value)

				return string(data), err
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// RenderString renders a customer-facing text. Missing keys render as empty text.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), noValue, ""), nil
}
