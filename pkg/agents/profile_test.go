package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/pkg/dispatch"
	"notifier/pkg/proto"
)

func TestUserProfileMergesRecommendations(t *testing.T) {
	reg := dispatch.NewRegistry()
	clk := newClock()
	p, err := NewUserProfile(reg, "Profiles", clk.opt())
	require.NoError(t, err)
	rec := newSink(reg, proto.AgentTypeRecommendation)

	send(reg, systemID, proto.AgentTypeUserProfile, proto.Single(proto.KeyFrequencyRecommendations, []proto.FrequencyRecommendation{
		{UserID: "u1", Channel: proto.ChannelEmail, MaxPerDay: 2},
		{UserID: "u1", Channel: proto.ChannelPush, MaxPerDay: 7},
	}))
	send(reg, systemID, proto.AgentTypeUserProfile, proto.Single(proto.KeyContentRecommendations, []proto.ContentRecommendation{
		{UserID: "u1", NotificationType: "promo", Score: 0.4},
	}))
	step(t, reg, p)

	prof, ok := p.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, 7, prof.MaxPerDay, "without a preference the highest cap wins")
	assert.InDelta(t, 0.4, prof.TypeScores["promo"], 1e-9)
	assert.Equal(t, t0, prof.UpdatedAt)

	send(reg, systemID, proto.AgentTypeUserProfile, proto.Single(proto.KeyChannelRecommendations, []proto.ChannelRecommendation{
		{UserID: "u1", PreferredChannel: proto.ChannelEmail, Scores: map[string]float64{proto.ChannelEmail: 1}},
	}))
	clk.Advance(1)
	step(t, reg, p)

	prof, _ = p.Profile("u1")
	assert.Equal(t, proto.ChannelEmail, prof.PreferredChannel)
	assert.Equal(t, 2, prof.MaxPerDay, "preferred channel's cap wins")

	queued := reg.Peek(rec)
	require.Len(t, queued, 2)
	last, err := proto.Decode[[]proto.UserProfile](queued[1].Content, proto.KeyUpdatedProfiles)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, proto.ChannelEmail, last[0].PreferredChannel)
	assert.Equal(t, proto.AgentTypeUserProfile, queued[1].Sender.AgentType)

	// No changes, no publication.
	step(t, reg, p)
	assert.Equal(t, 2, reg.Pending(rec))
}

func TestUserProfileCopiesAreIndependent(t *testing.T) {
	reg := dispatch.NewRegistry()
	p, err := NewUserProfile(reg, "Profiles", newClock().opt())
	require.NoError(t, err)

	send(reg, systemID, proto.AgentTypeUserProfile, proto.Single(proto.KeyContentRecommendations, []proto.ContentRecommendation{
		{UserID: "u1", NotificationType: "promo", Score: 0.4},
	}))
	step(t, reg, p)

	prof, _ := p.Profile("u1")
	prof.TypeScores["promo"] = 9

	again, _ := p.Profile("u1")
	assert.InDelta(t, 0.4, again.TypeScores["promo"], 1e-9)

	_, ok := p.Profile("nobody")
	assert.False(t, ok)
}
