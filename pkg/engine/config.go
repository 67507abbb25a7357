package engine

import (
	"time"

	"github.com/dukex/pagebot/pkg/actions"
	"github.com/dukex/pagebot/pkg/ai"
	"github.com/dukex/pagebot/pkg/conversation"
	"github.com/dukex/pagebot/pkg/flow"
)

// Config holds the engine limits. Zero fields take the defaults.
type Config struct {
	MaxHops        int
	DefaultHistory int
	WebhookTimeout time.Duration
	AITimeout      time.Duration
	LockTTL        time.Duration
	DedupTTL       time.Duration
}

const DefaultLockTTL = 30 * time.Second

func DefaultConfig() Config {
	return Config{
		MaxHops:        flow.DefaultMaxHops,
		DefaultHistory: ai.DefaultHistory,
		WebhookTimeout: actions.DefaultWebhookTimeout,
		AITimeout:      ai.DefaultTimeout,
		LockTTL:        DefaultLockTTL,
		DedupTTL:       conversation.DefaultDedupTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.MaxHops <= 0 {
		c.MaxHops = defaults.MaxHops
	}

	if c.DefaultHistory <= 0 {
		c.DefaultHistory = defaults.DefaultHistory
	}

	if c.WebhookTimeout <= 0 {
		c.WebhookTimeout = defaults.WebhookTimeout
	}

	if c.AITimeout <= 0 {
		c.AITimeout = defaults.AITimeout
	}

	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}

	if c.DedupTTL <= 0 {
		c.DedupTTL = defaults.DedupTTL
	}

	return c
}
