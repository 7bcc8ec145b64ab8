package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/pkg/agent"
	"notifier/pkg/config"
	"notifier/pkg/dispatch"
	"notifier/pkg/eventlog"
	"notifier/pkg/limiter"
	"notifier/pkg/proto"
)

// TestPipelineLearnsPreferredChannel drives one engagement signal through the
// whole agent graph, one hand-stepped tick per layer.
func TestPipelineLearnsPreferredChannel(t *testing.T) {
	reg := dispatch.NewRegistry()
	clk := newClock()
	audit := eventlog.NewMemorySink()
	snd := &recordingSender{}
	deps := Deps{
		Limiter:   limiter.NewLimiter(config.NotificationConfig{MaxPerDay: 10}, limiter.WithClock(clk.Now)),
		Sender:    snd,
		MaxPerDay: 10,
	}
	opts := []agent.Option{clk.opt(), agent.WithAudit(audit)}

	byType := make(map[string]stepper)
	for _, typ := range proto.AllAgentTypes() {
		if typ == proto.AgentTypeABTesting {
			continue
		}
		a, err := New(reg, typ, "", deps, opts...)
		require.NoError(t, err)
		byType[typ] = a.(stepper)
	}
	tick := func(types ...string) {
		for _, typ := range types {
			step(t, reg, byType[typ])
		}
	}

	send(reg, systemID, proto.AgentTypeMobileAppEvents, proto.Single(proto.KeyEngagementEvent, event("u1", proto.ChannelPush, proto.ActionClick, "promo")))
	send(reg, systemID, proto.AgentTypeEmailEngagement, proto.Single(proto.KeyEngagementEvent, event("u1", proto.ChannelEmail, proto.ActionDismiss, "promo")))

	tick(proto.DataCollectionTypes...)
	tick(proto.AnalysisTypes...)
	tick(proto.AgentTypeUserProfile)

	send(reg, systemID, proto.AgentTypeRecommendation, proto.Single(proto.KeyNewNotification, proto.Notification{ID: "n1", UserID: "u1", Type: "promo", Content: "sale"}))
	tick(proto.AgentTypeRecommendation)
	tick(proto.NotificationTypes...)
	tick(proto.AgentTypeMobileAppEvents)

	require.Len(t, snd.Sent(), 1)
	assert.Equal(t, proto.ChannelPush, snd.Sent()[0].channel)
	assert.Equal(t, "n1", snd.Sent()[0].rec.NotificationID)

	profile := byType[proto.AgentTypeUserProfile].(*UserProfile)
	prof, ok := profile.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, proto.ChannelPush, prof.PreferredChannel)
	assert.Equal(t, 10, prof.MaxPerDay)

	collector := byType[proto.AgentTypeMobileAppEvents].(*Collector)
	assert.Equal(t, 1, collector.DeliveryCounts()[proto.DeliveryStatusDelivered])

	sent, _ := deps.Limiter.GetStatus("u1")
	assert.Equal(t, 1, sent)

	// Sends were audited and no receiver rejected a message.
	assert.NotEmpty(t, audit.Filter("", eventlog.ActionSendMessage, eventlog.StatusSuccess))
	assert.Empty(t, audit.Filter("", eventlog.ActionReceiveMessage, eventlog.StatusFailed))
}
