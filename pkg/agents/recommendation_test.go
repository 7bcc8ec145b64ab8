package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/pkg/dispatch"
	"notifier/pkg/proto"
)

func TestChooseChannel(t *testing.T) {
	tests := []struct {
		name    string
		profile proto.UserProfile
		known   bool
		want    string
	}{
		{"no profile", proto.UserProfile{}, false, DefaultChannel},
		{"preferred", proto.UserProfile{PreferredChannel: proto.ChannelSMS}, true, proto.ChannelSMS},
		{"best score", proto.UserProfile{ChannelScores: map[string]float64{proto.ChannelPush: 0.2, proto.ChannelDashboard: 0.9}}, true, proto.ChannelDashboard},
		{"unknown preference falls back to scores", proto.UserProfile{PreferredChannel: "fax", ChannelScores: map[string]float64{proto.ChannelPush: 1}}, true, proto.ChannelPush},
		{"all zero", proto.UserProfile{ChannelScores: map[string]float64{proto.ChannelPush: 0}}, true, DefaultChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseChannel(tt.profile, tt.known))
		})
	}
}

func TestRecommendationRoutesToPreferredService(t *testing.T) {
	reg := dispatch.NewRegistry()
	r, err := NewRecommendation(reg, "Recommender", newClock().opt())
	require.NoError(t, err)
	sms := newSink(reg, proto.AgentTypeSMSGateway)
	email := newSink(reg, proto.AgentTypeEmailService)

	send(reg, profID, proto.AgentTypeRecommendation, proto.Single(proto.KeyUpdatedProfiles, []proto.UserProfile{
		{UserID: "u1", PreferredChannel: proto.ChannelSMS},
	}))
	later := t0.Add(2 * time.Hour)
	send(reg, systemID, proto.AgentTypeRecommendation, proto.Single(proto.KeyNewNotification, proto.Notification{
		ID: "n1", UserID: "u1", Type: "alert", Content: "hi", ScheduledAt: later,
	}))
	send(reg, systemID, proto.AgentTypeRecommendation, proto.Single(proto.KeyNewNotification, proto.Notification{
		UserID: "u2", Content: "welcome", ScheduledAt: t0.Add(-time.Hour),
	}))
	step(t, reg, r)

	queued := reg.Peek(sms)
	require.Len(t, queued, 1)
	rec, err := proto.Decode[proto.DeliveryRecommendation](queued[0].Content, proto.KeyDeliveryRecommendation)
	require.NoError(t, err)
	assert.Equal(t, "n1", rec.NotificationID)
	assert.Equal(t, proto.ChannelSMS, rec.RecommendedChannel)
	assert.Equal(t, later, rec.RecommendedTime)
	assert.Equal(t, "alert", rec.NotificationType)

	queued = reg.Peek(email)
	require.Len(t, queued, 1)
	rec, err = proto.Decode[proto.DeliveryRecommendation](queued[0].Content, proto.KeyDeliveryRecommendation)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.NotificationID, "missing ids are assigned")
	assert.Equal(t, t0, rec.RecommendedTime, "past schedules are sent now")
	assert.Equal(t, 0, r.Pending())
}

func TestRecommendationRejectsProfilesFromOthers(t *testing.T) {
	reg := dispatch.NewRegistry()
	r, err := NewRecommendation(reg, "Recommender", newClock().opt())
	require.NoError(t, err)

	env := proto.NewEnvelope(systemID, proto.Single(proto.KeyUpdatedProfiles, []proto.UserProfile{{UserID: "u1"}}))
	err = r.ReceiveMessage(context.Background(), env)
	assert.ErrorIs(t, err, ErrUnexpectedSender)

	env = proto.NewEnvelope(systemID, proto.Single(proto.KeyNewNotification, proto.Notification{ID: "x"}))
	assert.Error(t, r.ReceiveMessage(context.Background(), env), "notifications need a user")
}

func TestRecommendationRetriesThenDrops(t *testing.T) {
	reg := dispatch.NewRegistry()
	r, err := NewRecommendation(reg, "Recommender", newClock().opt())
	require.NoError(t, err)

	send(reg, systemID, proto.AgentTypeRecommendation, proto.Single(proto.KeyNewNotification, proto.Notification{ID: "n1", UserID: "u1"}))
	for i := 1; i < MaxRouteAttempts; i++ {
		step(t, reg, r)
		assert.Equal(t, 1, r.Pending(), "attempt %d keeps the notification", i)
	}

	// The service appears in time for a late retry on a second notification.
	send(reg, systemID, proto.AgentTypeRecommendation, proto.Single(proto.KeyNewNotification, proto.Notification{ID: "n2", UserID: "u1"}))
	step(t, reg, r)
	assert.Equal(t, 1, r.Dropped())
	assert.Equal(t, 1, r.Pending())

	email := newSink(reg, proto.AgentTypeEmailService)
	step(t, reg, r)
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, 1, reg.Pending(email))
}
