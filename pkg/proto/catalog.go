package proto

import "slices"

// Agent types. The type is the routing key for delivery.
const (
	// Data collection layer.
	AgentTypeDashboardTracker = "dashboard_tracker"
	AgentTypeEmailEngagement  = "email_engagement"
	AgentTypeMobileAppEvents  = "mobile_app_events"
	AgentTypeSMSInteraction   = "sms_interaction"

	// Analysis layer.
	AgentTypeFrequencyAnalysis = "frequency_analysis"
	AgentTypeTypeAnalysis      = "type_analysis"
	AgentTypeChannelAnalysis   = "channel_analysis"

	// Decision engine.
	AgentTypeUserProfile    = "user_profile"
	AgentTypeRecommendation = "recommendation"
	AgentTypeABTesting      = "ab_testing"

	// Notification management.
	AgentTypeEmailService     = "email_service"
	AgentTypePushNotification = "push_notification"
	AgentTypeSMSGateway       = "sms_gateway"
	AgentTypeDashboardAlert   = "dashboard_alert"
)

//nolint:gochecknoglobals // read-only lookup tables
var (
	DataCollectionTypes = []string{AgentTypeDashboardTracker, AgentTypeEmailEngagement, AgentTypeMobileAppEvents, AgentTypeSMSInteraction}
	AnalysisTypes       = []string{AgentTypeFrequencyAnalysis, AgentTypeTypeAnalysis, AgentTypeChannelAnalysis}
	DecisionTypes       = []string{AgentTypeUserProfile, AgentTypeRecommendation, AgentTypeABTesting}
	NotificationTypes   = []string{AgentTypeEmailService, AgentTypePushNotification, AgentTypeSMSGateway, AgentTypeDashboardAlert}
)

// AllAgentTypes returns every known agent type, grouped by layer.
func AllAgentTypes() []string {
	return slices.Concat(DataCollectionTypes, AnalysisTypes, DecisionTypes, NotificationTypes)
}

// IsKnownAgentType reports whether t belongs to the closed type set.
func IsKnownAgentType(t string) bool {
	return slices.Contains(AllAgentTypes(), t)
}

// Channels a notification can be delivered on.
const (
	ChannelEmail     = "email"
	ChannelPush      = "push"
	ChannelSMS       = "sms"
	ChannelDashboard = "dashboard"
)

//nolint:gochecknoglobals // read-only lookup tables
var (
	channelService = map[string]string{
		ChannelEmail:     AgentTypeEmailService,
		ChannelPush:      AgentTypePushNotification,
		ChannelSMS:       AgentTypeSMSGateway,
		ChannelDashboard: AgentTypeDashboardAlert,
	}
	channelCollector = map[string]string{
		ChannelEmail:     AgentTypeEmailEngagement,
		ChannelPush:      AgentTypeMobileAppEvents,
		ChannelSMS:       AgentTypeSMSInteraction,
		ChannelDashboard: AgentTypeDashboardTracker,
	}
	channelEngagementKey = map[string]string{
		ChannelEmail:     KeyEmailEngagement,
		ChannelPush:      KeyMobileEngagement,
		ChannelSMS:       KeySMSEngagement,
		ChannelDashboard: KeyDashboardMetrics,
	}
)

// AllChannels lists channels in a stable order.
func AllChannels() []string {
	return []string{ChannelEmail, ChannelPush, ChannelSMS, ChannelDashboard}
}

// ServiceForChannel maps a channel to the notification agent type that sends on it.
func ServiceForChannel(channel string) (string, bool) {
	t, ok := channelService[channel]
	return t, ok
}

// CollectorForChannel maps a channel to the data collection agent type that tracks it.
func CollectorForChannel(channel string) (string, bool) {
	t, ok := channelCollector[channel]
	return t, ok
}

// ChannelForAgentType is the inverse of ServiceForChannel and CollectorForChannel.
func ChannelForAgentType(agentType string) (string, bool) {
	for ch, t := range channelService {
		if t == agentType {
			return ch, true
		}
	}
	for ch, t := range channelCollector {
		if t == agentType {
			return ch, true
		}
	}
	return "", false
}

// EngagementKeyForChannel returns the content key a collector uses for its metric batch.
func EngagementKeyForChannel(channel string) (string, bool) {
	k, ok := channelEngagementKey[channel]
	return k, ok
}

// Content keys. Each key carries one message kind; see payload.go for shapes.
const (
	// KeyEngagementEvent carries one raw EngagementEvent into a collector.
	KeyEngagementEvent = "engagement_event"

	KeyEmailEngagement  = "email_engagement"
	KeyMobileEngagement = "mobile_engagement"
	KeySMSEngagement    = "sms_engagement"
	KeyDashboardMetrics = "dashboard_metrics"

	KeyChannelEngagement = "channel_engagement"

	KeyFrequencyRecommendations = "frequency_recommendations"
	KeyChannelRecommendations   = "channel_recommendations"
	KeyContentRecommendations   = "content_recommendations"

	KeyUpdatedProfiles        = "updated_profiles"
	KeyNewNotification        = "new_notification"
	KeyDeliveryRecommendation = "delivery_recommendation"
	KeyDeliveryData           = "delivery_data"
)

// EngagementKeys lists the per-channel metric batch keys analysis agents accept.
func EngagementKeys() []string {
	return []string{KeyEmailEngagement, KeyMobileEngagement, KeySMSEngagement, KeyDashboardMetrics}
}

// Engagement actions reported by collectors.
const (
	ActionOpen        = "open"
	ActionClick       = "click"
	ActionDismiss     = "dismiss"
	ActionMute        = "mute"
	ActionUnsubscribe = "unsubscribe"
)
