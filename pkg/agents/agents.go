// Package agents implements the notifier's collaborator agents on top of the
// agent runtime: collectors, analyzers, the decision engine and the channel
// services.
package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/limiter"
	"notifier/pkg/proto"
)

// ErrNotImplemented is returned by New for catalog types with no implementation.
var ErrNotImplemented = errors.New("agent type not implemented")

// Agent is the lifecycle surface every collaborator exposes.
type Agent interface {
	dispatch.Handle
	ID() string
	Run(ctx context.Context) error
	Start(ctx context.Context) error
	Stop()
	Done() <-chan struct{}
	LastRun() time.Time
}

// Deps are the shared collaborators handed to agents that need them.
type Deps struct {
	Limiter   *limiter.Limiter
	Sender    Sender
	MaxPerDay int
}

//nolint:gochecknoglobals // read-only lookup table
var defaultNames = map[string]string{
	proto.AgentTypeEmailEngagement:   "Email Engagement Tracker",
	proto.AgentTypeMobileAppEvents:   "Mobile App Events Tracker",
	proto.AgentTypeSMSInteraction:    "SMS Interaction Tracker",
	proto.AgentTypeDashboardTracker:  "Dashboard Tracker",
	proto.AgentTypeFrequencyAnalysis: "Frequency Analysis",
	proto.AgentTypeTypeAnalysis:      "Type Analysis",
	proto.AgentTypeChannelAnalysis:   "Channel Analysis",
	proto.AgentTypeUserProfile:       "User Profile Service",
	proto.AgentTypeRecommendation:    "Recommendation System",
	proto.AgentTypeABTesting:         "A/B Testing",
	proto.AgentTypeEmailService:      "Email Service",
	proto.AgentTypePushNotification:  "Push Notification Service",
	proto.AgentTypeSMSGateway:        "SMS Gateway",
	proto.AgentTypeDashboardAlert:    "Dashboard Alert Service",
}

// DefaultName returns the display name used when a config leaves it blank.
func DefaultName(agentType string) string {
	if n, ok := defaultNames[agentType]; ok {
		return n
	}
	return agentType
}

// New builds the collaborator for agentType. An empty name uses DefaultName.
func New(reg *dispatch.Registry, agentType, name string, deps Deps, opts ...agent.Option) (Agent, error) {
	if name == "" {
		name = DefaultName(agentType)
	}

	switch agentType {
	case proto.AgentTypeEmailEngagement, proto.AgentTypeMobileAppEvents,
		proto.AgentTypeSMSInteraction, proto.AgentTypeDashboardTracker:
		channel, _ := proto.ChannelForAgentType(agentType)
		return wrap[*Collector](NewCollector(reg, channel, name, opts...))
	case proto.AgentTypeFrequencyAnalysis:
		return wrap[*FrequencyAnalysis](NewFrequencyAnalysis(reg, name, deps.MaxPerDay, opts...))
	case proto.AgentTypeTypeAnalysis:
		return wrap[*TypeAnalysis](NewTypeAnalysis(reg, name, opts...))
	case proto.AgentTypeChannelAnalysis:
		return wrap[*ChannelAnalysis](NewChannelAnalysis(reg, name, opts...))
	case proto.AgentTypeUserProfile:
		return wrap[*UserProfile](NewUserProfile(reg, name, opts...))
	case proto.AgentTypeRecommendation:
		return wrap[*Recommendation](NewRecommendation(reg, name, opts...))
	case proto.AgentTypeEmailService, proto.AgentTypePushNotification,
		proto.AgentTypeSMSGateway, proto.AgentTypeDashboardAlert:
		channel, _ := proto.ChannelForAgentType(agentType)
		return wrap[*ChannelNotifier](NewChannelNotifier(reg, channel, name, deps.Limiter, deps.Sender, opts...))
	case proto.AgentTypeABTesting:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, agentType)
	default:
		return nil, fmt.Errorf("%w: %q", agent.ErrUnknownAgentType, agentType)
	}
}

// wrap keeps a failed constructor from returning a typed nil inside Agent.
func wrap[T Agent](a T, err error) (Agent, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}
