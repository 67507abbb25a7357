package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestConfigFromCommand(t *testing.T) {
	t.Parallel()

	var config Config

	command := &cli.Command{
		Name:  "pagebot-test",
		Flags: Flags(),
		Action: func(_ context.Context, command *cli.Command) error {
			config = ConfigFromCommand(command, "pagebot-test")

			return nil
		},
	}

	err := command.Run(t.Context(), []string{
		"pagebot-test",
		"--database-url", "postgres://localhost/pagebot",
		"--event-bus", "kafka",
		"--max-hops", "7",
		"--lock-ttl", "10s",
		"--openai-rps", "2.5",
	})
	require.NoError(t, err)

	defaults := engine.DefaultConfig()

	assert.Equal(t, "pagebot-test", config.ServiceName)
	assert.Equal(t, "postgres://localhost/pagebot", config.DatabaseURL)
	assert.Equal(t, EventBusKafka, config.EventBus)
	assert.Equal(t, 7, config.Engine.MaxHops)
	assert.Equal(t, 10*time.Second, config.Engine.LockTTL)
	assert.Equal(t, defaults.DedupTTL, config.Engine.DedupTTL)
	assert.InDelta(t, 2.5, config.OpenAIRequestsPerSecond, 0.001)
	assert.Equal(t, DefaultAIModel, config.OpenAIModel)
}
