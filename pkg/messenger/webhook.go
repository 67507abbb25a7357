package messenger

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotPageObject = errors.New("webhook object is not a page")

// Event is one customer message or postback from a Messenger webhook delivery.
type Event struct {
	PageID    string
	SenderID  string
	Text      string
	MID       string
	Payload   string
	Timestamp int64
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID        string `json:"mid"`
				Text       string `json:"text"`
				IsEcho     bool   `json:"is_echo"`
				QuickReply *struct {
					Payload string `json:"payload"`
				} `json:"quick_reply"`
			} `json:"message"`
			Postback *struct {
				MID     string `json:"mid"`
				Title   string `json:"title"`
				Payload string `json:"payload"`
			} `json:"postback"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseWebhook extracts customer events from an already verified webhook body. Echoes of the page's
// own messages and events without a mid are dropped.
func ParseWebhook(body []byte) ([]Event, error) {
	var payload webhookPayload

	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	if payload.Object != "page" {
		return nil, ErrNotPageObject
	}

	events := make([]Event, 0)

	for _, entry := range payload.Entry {
		for _, messaging := range entry.Messaging {
			event := Event{
				PageID:    entry.ID,
				SenderID:  messaging.Sender.ID,
				Timestamp: messaging.Timestamp,
			}

			if event.PageID == "" {
				event.PageID = messaging.Recipient.ID
			}

			switch {
			case messaging.Message != nil:
				if messaging.Message.IsEcho {
					continue
				}

				event.MID = messaging.Message.MID
				event.Text = messaging.Message.Text

				if messaging.Message.QuickReply != nil {
					event.Payload = messaging.Message.QuickReply.Payload
				}
			case messaging.Postback != nil:
				event.MID = messaging.Postback.MID
				event.Text = messaging.Postback.Title
				event.Payload = messaging.Postback.Payload
			default:
				continue
			}

			if event.MID == "" || (event.Text == "" && event.Payload == "") {
				continue
			}

			events = append(events, event)
		}
	}

	return events, nil
}
