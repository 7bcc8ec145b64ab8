package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/proto"
)

func TestNewBuildsEveryImplementedType(t *testing.T) {
	reg := dispatch.NewRegistry()

	for _, typ := range proto.AllAgentTypes() {
		if typ == proto.AgentTypeABTesting {
			continue
		}
		a, err := New(reg, typ, "", Deps{MaxPerDay: 10})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, a.Identity().AgentType)
		assert.Equal(t, DefaultName(typ), a.Identity().AgentName)
		assert.False(t, a.IsRunning())
	}

	assert.Equal(t, len(proto.AllAgentTypes())-1, reg.Stats().RegisteredAgents)
}

func TestNewRejectsUnsupportedTypes(t *testing.T) {
	reg := dispatch.NewRegistry()

	_, err := New(reg, proto.AgentTypeABTesting, "", Deps{})
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = New(reg, "telegram_bot", "", Deps{})
	assert.ErrorIs(t, err, agent.ErrUnknownAgentType)

	assert.Equal(t, 0, reg.Stats().RegisteredAgents)
}

func TestNewKeepsExplicitName(t *testing.T) {
	reg := dispatch.NewRegistry()
	a, err := New(reg, proto.AgentTypeSMSGateway, "Twilio Gateway", Deps{})
	require.NoError(t, err)
	assert.Equal(t, "Twilio Gateway", a.Identity().AgentName)
}

func TestScoring(t *testing.T) {
	assert.InDelta(t, 1.0, actionScore(proto.ActionClick), 1e-9)
	assert.InDelta(t, 0.6, actionScore(proto.ActionOpen), 1e-9)
	assert.InDelta(t, 0.1, actionScore(proto.ActionDismiss), 1e-9)
	assert.InDelta(t, 0.0, actionScore(proto.ActionUnsubscribe), 1e-9)
	assert.True(t, isEngaged(proto.ActionOpen))
	assert.False(t, isEngaged(proto.ActionMute))

	var tl tally
	assert.InDelta(t, 0.0, tl.mean(), 1e-9)
	tl.add(1)
	tl.add(0)
	assert.InDelta(t, 0.5, tl.mean(), 1e-9)
}
