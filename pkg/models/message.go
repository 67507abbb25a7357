package models

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
	SenderAgent    SenderType = "agent"
)

type ProcessedBy string

const (
	ProcessedByScript ProcessedBy = "script"
	ProcessedByAI     ProcessedBy = "ai"
	ProcessedByAgent  ProcessedBy = "agent"
	ProcessedByNone   ProcessedBy = "none"
)

type MessageStatus string

const (
	MessageStatusReceived  MessageStatus = "received"
	MessageStatusProcessed MessageStatus = "processed"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusError     MessageStatus = "error"
)

// Message is an immutable record of one inbound or outbound event. Only Status changes after creation.
type Message struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"conversation_id"`
	Direction         Direction     `json:"direction"`
	SenderType        SenderType    `json:"sender_type"`
	Text              string        `json:"text"`
	Attachments       []Attachment  `json:"attachments,omitempty"`
	ProcessedBy       ProcessedBy   `json:"processed_by"`
	Status            MessageStatus `json:"status"`
	MID               string        `json:"mid,omitempty"`
	ReplyToID         string        `json:"reply_to_id,omitempty"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

type AttachmentType string

const (
	AttachmentMedia      AttachmentType = "media"
	AttachmentQuickReply AttachmentType = "quick_replies"
	AttachmentCarousel   AttachmentType = "carousel"
)

// Attachment carries the structured part of an outbound response.
type Attachment struct {
	Type         AttachmentType     `json:"type"`
	MediaType    string             `json:"media_type,omitempty"`
	URL          string             `json:"url,omitempty"`
	QuickReplies []QuickReplyOption `json:"quick_replies,omitempty"`
	Cards        []Card             `json:"cards,omitempty"`
}

// InboundMessage is the canonical form of an inbound delivery.
type InboundMessage struct {
	PageID    string    `json:"page_id"   validate:"required"`
	SenderID  string    `json:"sender_id" validate:"required"`
	Text      string    `json:"text"`
	MID       string    `json:"mid"       validate:"required"`
	Payload   string    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *InboundMessage) ConversationKey() string {
	return ConversationKey(m.PageID, m.SenderID)
}

// OutboundPayload is what the delivery collaborator receives for one response.
type OutboundPayload struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

func (p *OutboundPayload) Empty() bool {
	return p.Text == "" && len(p.Attachments) == 0
}
