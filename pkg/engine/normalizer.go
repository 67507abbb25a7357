package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize converts a webhook event into an InboundMessage. Events without a timestamp are stamped
// with now.
func Normalize(event messenger.Event, now time.Time) (*models.InboundMessage, error) {
	message := &models.InboundMessage{
		PageID:   strings.TrimSpace(event.PageID),
		SenderID: strings.TrimSpace(event.SenderID),
		Text:     strings.TrimSpace(event.Text),
		MID:      strings.TrimSpace(event.MID),
		Payload:  strings.TrimSpace(event.Payload),
	}

	if event.Timestamp > 0 {
		message.Timestamp = time.UnixMilli(event.Timestamp).UTC()
	} else {
		message.Timestamp = now.UTC()
	}

	err := validate.Struct(message)
	if err != nil {
		return nil, fmt.Errorf("invalid inbound message: %w", err)
	}

	if message.Text == "" && message.Payload == "" {
		return nil, ErrEmptyMessage
	}

	return message, nil
}
