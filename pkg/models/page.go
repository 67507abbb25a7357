package models

import "time"

// Page is the fanpage record the engine reads for AI defaults and delivery tokens.
type Page struct {
	ID                string    `json:"id"                              validate:"required"`
	Name              string    `json:"name"`
	AccessToken       string    `json:"access_token,omitempty"`
	AIEnabled         bool      `json:"ai_enabled"`
	DefaultAIConfigID string    `json:"default_ai_config_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type Customer struct {
	ID         string    `json:"id"`
	PageID     string    `json:"page_id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name,omitempty"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasTag reports whether the customer already carries tag.
func (c *Customer) HasTag(tag string) bool {
	for _, existing := range c.Tags {
		if existing == tag {
			return true
		}
	}

	return false
}

// AIConfig is a completion configuration owned by the OpenAI settings screens.
type AIConfig struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Model              string    `json:"model"                validate:"required"`
	SystemPrompt       string    `json:"system_prompt"`
	Temperature        float64   `json:"temperature"          validate:"min=0,max=2"`
	MaxTokens          int       `json:"max_tokens"           validate:"min=0"`
	MaxHistoryMessages int       `json:"max_history_messages" validate:"min=0,max=50"`
	CreatedAt          time.Time `json:"created_at"`
}

// Product is returned by the catalog collaborator.
type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
}
