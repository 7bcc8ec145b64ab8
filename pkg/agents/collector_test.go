package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/pkg/dispatch"
	"notifier/pkg/proto"
)

func TestCollectorForwardsBatchToAnalysis(t *testing.T) {
	reg := dispatch.NewRegistry()
	c, err := NewCollector(reg, proto.ChannelSMS, "SMS", newClock().opt())
	require.NoError(t, err)
	freq := newSink(reg, proto.AgentTypeFrequencyAnalysis)
	typ := newSink(reg, proto.AgentTypeTypeAnalysis)
	ch := newSink(reg, proto.AgentTypeChannelAnalysis)

	ev := event("u1", "", proto.ActionOpen, "promo")
	require.Equal(t, 1, send(reg, systemID, proto.AgentTypeSMSInteraction, proto.Single(proto.KeyEngagementEvent, ev)))
	step(t, reg, c)

	for _, id := range []string{freq, typ} {
		queued := reg.Peek(id)
		require.Len(t, queued, 1)
		batch, err := proto.Decode[proto.EngagementBatch](queued[0].Content, proto.KeySMSEngagement)
		require.NoError(t, err)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, proto.ChannelSMS, batch.Events[0].Channel, "missing channel defaults to the collector's")
	}
	queued := reg.Peek(ch)
	require.Len(t, queued, 1)
	assert.True(t, queued[0].Content.Has(proto.KeyChannelEngagement))
	assert.Equal(t, 0, c.Buffered())

	// Nothing buffered means nothing sent.
	step(t, reg, c)
	assert.Equal(t, 1, reg.Pending(freq))
}

func TestCollectorRejectsForeignChannel(t *testing.T) {
	reg := dispatch.NewRegistry()
	c, err := NewCollector(reg, proto.ChannelEmail, "Email", newClock().opt())
	require.NoError(t, err)

	env := proto.NewEnvelope(systemID, proto.Single(proto.KeyEngagementEvent, event("u1", proto.ChannelPush, proto.ActionClick, "")))
	err = c.ReceiveMessage(context.Background(), env)

	assert.Error(t, err)
	assert.Equal(t, 0, c.Buffered())
}

func TestCollectorCountsDeliveryResults(t *testing.T) {
	reg := dispatch.NewRegistry()
	c, err := NewCollector(reg, proto.ChannelPush, "Push", newClock().opt())
	require.NoError(t, err)

	results := []proto.DeliveryData{
		{NotificationID: "a", Status: proto.DeliveryStatusDelivered},
		{NotificationID: "b", Status: proto.DeliveryStatusDelivered},
		{NotificationID: "c", Status: proto.DeliveryStatusDeferred},
	}
	send(reg, systemID, proto.AgentTypeMobileAppEvents, proto.Single(proto.KeyDeliveryData, results))
	step(t, reg, c)

	assert.Equal(t, map[string]int{proto.DeliveryStatusDelivered: 2, proto.DeliveryStatusDeferred: 1}, c.DeliveryCounts())
}

func TestNewCollectorUnknownChannel(t *testing.T) {
	_, err := NewCollector(dispatch.NewRegistry(), "fax", "Fax")
	assert.Error(t, err)
}
