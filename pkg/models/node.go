package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

type NodeType string

const (
	NodeTypeText        NodeType = "text"
	NodeTypeMedia       NodeType = "media"
	NodeTypeQuickReply  NodeType = "quick_reply"
	NodeTypeCarousel    NodeType = "carousel"
	NodeTypeForm        NodeType = "form"
	NodeTypeAction      NodeType = "action"
	NodeTypeAIReply     NodeType = "ai_reply"
	NodeTypeWait        NodeType = "wait"
	NodeTypeChildScript NodeType = "child_script"
)

// NodeTypes lists every node variant.
var NodeTypes = []NodeType{
	NodeTypeText,
	NodeTypeMedia,
	NodeTypeQuickReply,
	NodeTypeCarousel,
	NodeTypeForm,
	NodeTypeAction,
	NodeTypeAIReply,
	NodeTypeWait,
	NodeTypeChildScript,
}

var ErrUnknownNodeType = errors.New("unknown node type")

// Node is one step of a scenario's dialogue flow. Content holds the payload for Type.
type Node struct {
	ID      string   `json:"id"       validate:"required"`
	Type    NodeType `json:"type"     validate:"required"`
	Name    string   `json:"name,omitempty"`
	IsEntry bool     `json:"is_entry"`
	Content Content  `json:"content"`
}

// Content is the sealed set of node payloads. Every consumer goes through ContentVisitor, so adding a
// variant breaks the build until each visitor handles it.
type Content interface {
	NodeType() NodeType
	Accept(visitor ContentVisitor) error
}

type ContentVisitor interface {
	VisitText(content *TextContent) error
	VisitMedia(content *MediaContent) error
	VisitQuickReply(content *QuickReplyContent) error
	VisitCarousel(content *CarouselContent) error
	VisitForm(content *FormContent) error
	VisitAction(content *ActionContent) error
	VisitAIReply(content *AIReplyContent) error
	VisitWait(content *WaitContent) error
	VisitChildScript(content *ChildScriptContent) error
}

type TextContent struct {
	Text string `json:"text" validate:"required"`
}

type MediaContent struct {
	URL       string `json:"url"                  validate:"required,url"`
	MediaType string `json:"media_type"           validate:"required,oneof=image video audio file"`
	Caption   string `json:"caption,omitempty"`
}

type QuickReplyOption struct {
	Title      string `json:"title"                  validate:"required"`
	Payload    string `json:"payload,omitempty"`
	NextNodeID string `json:"next_node_id,omitempty"`
}

type QuickReplyContent struct {
	Text    string             `json:"text"               validate:"required"`
	Options []QuickReplyOption `json:"options"            validate:"required,min=1,dive"`
	SaveTo  string             `json:"save_to,omitempty"`
}

type CarouselSource string

const (
	CarouselSourceManual       CarouselSource = "manual"
	CarouselSourceProductGroup CarouselSource = "product_group"
)

type Card struct {
	Title    string `json:"title"               validate:"required"`
	Subtitle string `json:"subtitle,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	URL      string `json:"url,omitempty"`
}

type CarouselContent struct {
	Source         CarouselSource `json:"source"                     validate:"required,oneof=manual product_group"`
	Cards          []Card         `json:"cards,omitempty"            validate:"dive"`
	ProductGroupID string         `json:"product_group_id,omitempty"`
	Limit          int            `json:"limit,omitempty"            validate:"min=0"`
}

type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeEmail  FieldType = "email"
	FieldTypePhone  FieldType = "phone"
)

type FormField struct {
	Key          string    `json:"key"                     validate:"required"`
	Prompt       string    `json:"prompt"                  validate:"required"`
	Required     bool      `json:"required"`
	Type         FieldType `json:"type,omitempty"          validate:"omitempty,oneof=text number email phone"`
	Pattern      string    `json:"pattern,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

type FormContent struct {
	Fields      []FormField `json:"fields"                  validate:"required,min=1,dive"`
	SaveTo      string      `json:"save_to,omitempty"`
	MaxRetries  int         `json:"max_retries,omitempty"   validate:"min=0"`
	SkipKeyword string      `json:"skip_keyword,omitempty"`
}

type ActionContent struct {
	Actions []*Action `json:"actions" validate:"required,min=1,dive"`
}

// AIReplyContent either defers to the scenario's AI config or overrides parts of it.
type AIReplyContent struct {
	UseDefault         bool     `json:"use_default"`
	Model              string   `json:"model,omitempty"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxTokens          int      `json:"max_tokens,omitempty"`
	MaxHistoryMessages int      `json:"max_history_messages,omitempty" validate:"min=0,max=50"`
}

type WaitContent struct {
	Seconds int `json:"seconds" validate:"min=1"`
}

// ChildScriptContent jumps into another scenario's published flow; an empty NodeID means its entry node.
type ChildScriptContent struct {
	ScenarioID string `json:"scenario_id"        validate:"required"`
	NodeID     string `json:"node_id,omitempty"`
}

func (c *TextContent) NodeType() NodeType        { return NodeTypeText }
func (c *MediaContent) NodeType() NodeType       { return NodeTypeMedia }
func (c *QuickReplyContent) NodeType() NodeType  { return NodeTypeQuickReply }
func (c *CarouselContent) NodeType() NodeType    { return NodeTypeCarousel }
func (c *FormContent) NodeType() NodeType        { return NodeTypeForm }
func (c *ActionContent) NodeType() NodeType      { return NodeTypeAction }
func (c *AIReplyContent) NodeType() NodeType     { return NodeTypeAIReply }
func (c *WaitContent) NodeType() NodeType        { return NodeTypeWait }
func (c *ChildScriptContent) NodeType() NodeType { return NodeTypeChildScript }

func (c *TextContent) Accept(v ContentVisitor) error        { return v.VisitText(c) }
func (c *MediaContent) Accept(v ContentVisitor) error       { return v.VisitMedia(c) }
func (c *QuickReplyContent) Accept(v ContentVisitor) error  { return v.VisitQuickReply(c) }
func (c *CarouselContent) Accept(v ContentVisitor) error    { return v.VisitCarousel(c) }
func (c *FormContent) Accept(v ContentVisitor) error        { return v.VisitForm(c) }
func (c *ActionContent) Accept(v ContentVisitor) error      { return v.VisitAction(c) }
func (c *AIReplyContent) Accept(v ContentVisitor) error     { return v.VisitAIReply(c) }
func (c *WaitContent) Accept(v ContentVisitor) error        { return v.VisitWait(c) }
func (c *ChildScriptContent) Accept(v ContentVisitor) error { return v.VisitChildScript(c) }

// NewContent returns an empty payload for the node type.
func NewContent(nodeType NodeType) (Content, error) {
	switch nodeType {
	case NodeTypeText:
		return &TextContent{}, nil
	case NodeTypeMedia:
		return &MediaContent{}, nil
	case NodeTypeQuickReply:
		return &QuickReplyContent{}, nil
	case NodeTypeCarousel:
		return &CarouselContent{}, nil
	case NodeTypeForm:
		return &FormContent{}, nil
	case NodeTypeAction:
		return &ActionContent{}, nil
	case NodeTypeAIReply:
		return &AIReplyContent{}, nil
	case NodeTypeWait:
		return &WaitContent{}, nil
	case NodeTypeChildScript:
		return &ChildScriptContent{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// DecodeContent decodes a raw payload into the variant for nodeType.
func DecodeContent(nodeType NodeType, raw json.RawMessage) (Content, error) {
	content, err := NewContent(nodeType)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return content, nil
	}

	err = json.Unmarshal(raw, content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s content: %w", nodeType, err)
	}

	return content, nil
}

type nodeJSON struct {
	ID      string          `json:"id"`
	Type    NodeType        `json:"type"`
	Name    string          `json:"name,omitempty"`
	IsEntry bool            `json:"is_entry"`
	Content json.RawMessage `json:"content"`
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	content, err := DecodeContent(raw.Type, raw.Content)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	n.ID = raw.ID
	n.Type = raw.Type
	n.Name = raw.Name
	n.IsEntry = raw.IsEntry
	n.Content = content

	return nil
}

// Validate checks that the payload variant agrees with the declared type.
func (n *Node) Validate() error {
	if n.Content == nil {
		return fmt.Errorf("node %s has no content", n.ID)
	}

	if n.Content.NodeType() != n.Type {
		return fmt.Errorf("node %s declares type %s but carries %s content", n.ID, n.Type, n.Content.NodeType())
	}

	return nil
}
