package engine

import (
	"testing"
	"time"

	"github.com/dukex/pagebot/pkg/channels/gochannel"
	"github.com/dukex/pagebot/pkg/eventbus"
	"github.com/dukex/pagebot/pkg/events"
	"github.com/dukex/pagebot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ProcessesInboundEvents(t *testing.T) {
	f := newFixture(t)
	f.publish(t, scenario("price", []*models.Trigger{keyword("t1", "price", 0)}, []*models.Node{text("n1", "100k")}), 1)

	logger := testLogger()
	pubSub := gochannel.CreateTestChannel(logger)
	bus := eventbus.NewWatermillEventBus(logger, pubSub, pubSub)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	require.NoError(t, NewWorker(logger, f.engine, bus).Start(t.Context()))

	message := models.InboundMessage{PageID: "p1", SenderID: "u1", MID: "m1", Text: "price?", Timestamp: testNow}
	require.NoError(t, bus.Publish(t.Context(), message.ConversationKey(), events.NewInboundMessageReceived(message)))
	require.NoError(t, bus.Publish(t.Context(), message.ConversationKey(), events.NewInboundMessageReceived(message)))

	require.Eventually(t, func() bool {
		return len(f.sender.texts()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"100k"}, f.sender.texts())
}
