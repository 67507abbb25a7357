// Package messenger delivers responses through the Messenger Send API and parses webhook deliveries.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/dukex/pagebot/pkg/persistence"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultGraphURL = "https://graph.facebook.com/v19.0"
	defaultTimeout  = 10 * time.Second
	maxCards        = 10
	maxQuickReplies = 13
)

var (
	ErrEmptyPayload = errors.New("nothing to send")
	ErrNoPageToken  = errors.New("page has no access token")
)

// Sender is the outbound delivery capability.
type Sender interface {
	Send(ctx context.Context, pageID, recipientID string, payload models.OutboundPayload) (string, error)
}

type Client struct {
	logger *slog.Logger
	client *resty.Client
	pages  persistence.PageRepository
	tracer trace.Tracer
}

type Option func(*Client)

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

func NewClient(logger *slog.Logger, graphURL string, pages persistence.PageRepository, opts ...Option) *Client {
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}

	c := &Client{
		logger: logger.With("module", "messenger"),
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(graphURL, "/")).
			SetTimeout(defaultTimeout),
		pages:  pages,
		tracer: otel.Tracer("pagebot-messenger"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type recipient struct {
	ID string `json:"id"`
}

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type attachment struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type message struct {
	Text         string       `json:"text,omitempty"`
	Attachment   *attachment  `json:"attachment,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
}

type sendRequest struct {
	Recipient     recipient `json:"recipient"`
	MessagingType string    `json:"messaging_type"`
	Message       message   `json:"message"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []button `json:"buttons,omitempty"`
}

type button struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Send delivers payload as one or more Graph messages and returns the id of the last one.
// Media and carousels go out first; text goes last when it carries quick replies so they stay visible.
func (c *Client) Send(ctx context.Context, pageID, recipientID string, payload models.OutboundPayload) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "messenger.send",
		attribute.String(otelhelper.PageIDKey, pageID),
		attribute.String(otelhelper.PSIDKey, recipientID),
	)
	defer span.End()

	lastID, err := c.send(ctx, pageID, recipientID, payload)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return lastID, err
}

func (c *Client) send(ctx context.Context, pageID, recipientID string, payload models.OutboundPayload) (string, error) {
	messages := build(payload)
	if len(messages) == 0 {
		return "", ErrEmptyPayload
	}

	page, err := c.pages.GetByID(ctx, pageID)
	if err != nil {
		return "", fmt.Errorf("failed to load page %s: %w", pageID, err)
	}

	if page.AccessToken == "" {
		return "", ErrNoPageToken
	}

	var lastID string

	for _, msg := range messages {
		lastID, err = c.post(ctx, page.AccessToken, recipientID, msg)
		if err != nil {
			return "", err
		}
	}

	c.logger.DebugContext(ctx, "message delivered",
		"page_id", pageID,
		"recipient_id", recipientID,
		"parts", len(messages),
		"message_id", lastID)

	return lastID, nil
}

func (c *Client) post(ctx context.Context, token, recipientID string, msg message) (string, error) {
	var (
		result  sendResponse
		failure graphError
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetBody(sendRequest{
			Recipient:     recipient{ID: recipientID},
			MessagingType: "RESPONSE",
			Message:       msg,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/me/messages")
	if err != nil {
		return "", fmt.Errorf("send api request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("send api error (status %d, code %d): %s",
			resp.StatusCode(), failure.Error.Code, failure.Error.Message)
	}

	return result.MessageID, nil
}

// build converts an outbound payload into Graph messages.
func build(payload models.OutboundPayload) []message {
	messages := make([]message, 0, len(payload.Attachments)+1)

	var replies []quickReply

	for _, a := range payload.Attachments {
		switch a.Type {
		case models.AttachmentMedia:
			messages = append(messages, message{Attachment: &attachment{
				Type:    a.MediaType,
				Payload: map[string]any{"url": a.URL, "is_reusable": true},
			}})
		case models.AttachmentCarousel:
			if len(a.Cards) == 0 {
				continue
			}

			messages = append(messages, message{Attachment: &attachment{
				Type: "template",
				Payload: map[string]any{
					"template_type": "generic",
					"elements":      elements(a.Cards),
				},
			}})
		case models.AttachmentQuickReply:
			for _, option := range a.QuickReplies {
				if len(replies) == maxQuickReplies {
					break
				}

				value := option.Payload
				if value == "" {
					value = option.Title
				}

				replies = append(replies, quickReply{ContentType: "text", Title: option.Title, Payload: value})
			}
		}
	}

	if payload.Text == "" {
		return messages
	}

	text := message{Text: payload.Text, QuickReplies: replies}
	if len(replies) > 0 {
		return append(messages, text)
	}

	return append([]message{text}, messages...)
}

func elements(cards []models.Card) []element {
	if len(cards) > maxCards {
		cards = cards[:maxCards]
	}

	result := make([]element, 0, len(cards))

	for _, card := range cards {
		e := element{Title: card.Title, Subtitle: card.Subtitle, ImageURL: card.ImageURL}
		if card.URL != "" {
			e.Buttons = []button{{Type: "web_url", URL: card.URL, Title: "View"}}
		}

		result = append(result, e)
	}

	return result
}
