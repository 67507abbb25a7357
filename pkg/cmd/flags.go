package cmd

import (
	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/messenger"
	"github.com/urfave/cli/v3"
)

// Flags returns the flags shared by every binary. Each one can also be set through its environment variable.
func Flags() []cli.Flag {
	defaults := engine.DefaultConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a file directory)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (memory, gochannel, kafka)",
			Value:   EventBusMemory,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for conversation locks and webhook dedup; in-memory when empty, required with kafka",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			Usage:   "OpenAI API key; the AI fallback is disabled when empty",
			Sources: cli.EnvVars("OPENAI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "openai-base-url",
			Usage:   "Base URL of an OpenAI compatible API",
			Sources: cli.EnvVars("OPENAI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "openai-model",
			Usage:   "Default chat completion model",
			Value:   DefaultAIModel,
			Sources: cli.EnvVars("OPENAI_MODEL"),
		},
		&cli.FloatFlag{
			Name:    "openai-rps",
			Usage:   "Maximum completion requests per second (0 is unlimited)",
			Sources: cli.EnvVars("OPENAI_REQUESTS_PER_SECOND"),
		},
		&cli.StringFlag{
			Name:    "system-prompt",
			Usage:   "Default system prompt when neither scenario nor page configures one",
			Sources: cli.EnvVars("AI_SYSTEM_PROMPT"),
		},
		&cli.StringFlag{
			Name:    "catalog-url",
			Usage:   "Base URL of the product catalog service",
			Sources: cli.EnvVars("CATALOG_URL"),
		},
		&cli.StringFlag{
			Name:    "graph-api-url",
			Usage:   "Messenger Send API base URL",
			Value:   messenger.DefaultGraphURL,
			Sources: cli.EnvVars("GRAPH_API_URL"),
		},
		&cli.IntFlag{
			Name:    "max-hops",
			Usage:   "Maximum nodes visited by one flow run",
			Value:   defaults.MaxHops,
			Sources: cli.EnvVars("MAX_HOPS"),
		},
		&cli.IntFlag{
			Name:    "ai-history",
			Usage:   "Default number of history messages sent to the AI",
			Value:   defaults.DefaultHistory,
			Sources: cli.EnvVars("AI_HISTORY_MESSAGES"),
		},
		&cli.DurationFlag{
			Name:    "webhook-timeout",
			Usage:   "Timeout of call_webhook actions",
			Value:   defaults.WebhookTimeout,
			Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "ai-timeout",
			Usage:   "Timeout of one AI completion",
			Value:   defaults.AITimeout,
			Sources: cli.EnvVars("AI_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "lock-ttl",
			Usage:   "Expiry of a distributed conversation lock",
			Value:   defaults.LockTTL,
			Sources: cli.EnvVars("LOCK_TTL"),
		},
		&cli.DurationFlag{
			Name:    "dedup-ttl",
			Usage:   "How long delivered message ids are remembered",
			Value:   defaults.DedupTTL,
			Sources: cli.EnvVars("DEDUP_TTL"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ConfigFromCommand reads the shared flags of command.
func ConfigFromCommand(command *cli.Command, serviceName string) Config {
	return Config{
		ServiceName:             serviceName,
		DatabaseURL:             command.String("database-url"),
		EventBus:                command.String("event-bus"),
		RedisURL:                command.String("redis-url"),
		OTelEnabled:             command.Bool("otel-enabled"),
		OpenAIAPIKey:            command.String("openai-api-key"),
		OpenAIBaseURL:           command.String("openai-base-url"),
		OpenAIModel:             command.String("openai-model"),
		OpenAIRequestsPerSecond: command.Float("openai-rps"),
		SystemPrompt:            command.String("system-prompt"),
		CatalogURL:              command.String("catalog-url"),
		GraphAPIURL:             command.String("graph-api-url"),
		Engine: engine.Config{
			MaxHops:        command.Int("max-hops"),
			DefaultHistory: command.Int("ai-history"),
			WebhookTimeout: command.Duration("webhook-timeout"),
			AITimeout:      command.Duration("ai-timeout"),
			LockTTL:        command.Duration("lock-ttl"),
			DedupTTL:       command.Duration("dedup-ttl"),
		},
	}
}
