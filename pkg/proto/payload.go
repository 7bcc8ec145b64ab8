package proto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Typed shapes for the content keys in catalog.go. Senders store the Go value
// directly; receivers use Decode, which also accepts the map form produced by
// a JSON round trip (event log replay).

// EngagementEvent is one user interaction with a delivered notification.
type EngagementEvent struct {
	UserID           string    `json:"user_id"`
	NotificationID   string    `json:"notification_id"`
	NotificationType string    `json:"notification_type,omitempty"`
	Channel          string    `json:"channel"`
	Action           string    `json:"action"`
	Timestamp        time.Time `json:"timestamp"`
}

// EngagementBatch is what collectors send under the *_engagement keys and
// channel_engagement.
type EngagementBatch struct {
	Channel string            `json:"channel"`
	Events  []EngagementEvent `json:"events"`
}

type FrequencyRecommendation struct {
	UserID         string  `json:"user_id"`
	Channel        string  `json:"channel"`
	EngagementRate float64 `json:"engagement_rate"`
	MaxPerDay      int     `json:"max_per_day"`
}

type ChannelRecommendation struct {
	UserID           string             `json:"user_id"`
	PreferredChannel string             `json:"preferred_channel"`
	Scores           map[string]float64 `json:"scores"`
}

type ContentRecommendation struct {
	UserID           string  `json:"user_id"`
	NotificationType string  `json:"notification_type"`
	Score            float64 `json:"score"`
}

// UserProfile is the decision layer's merged view of one user.
type UserProfile struct {
	UserID           string             `json:"user_id"`
	PreferredChannel string             `json:"preferred_channel"`
	ChannelScores    map[string]float64 `json:"channel_scores,omitempty"`
	TypeScores       map[string]float64 `json:"type_scores,omitempty"`
	MaxPerDay        int                `json:"max_per_day,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Notification is a request to notify a user, injected under new_notification.
type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

type DeliveryRecommendation struct {
	NotificationID     string    `json:"notification_id"`
	UserID             string    `json:"user_id"`
	NotificationType   string    `json:"notification_type,omitempty"`
	Content            string    `json:"content,omitempty"`
	RecommendedChannel string    `json:"recommended_channel"`
	RecommendedTime    time.Time `json:"recommended_time"`
}

// Delivery statuses reported in DeliveryData.
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusDeferred  = "deferred"
	DeliveryStatusFailed    = "failed"
)

type DeliveryData struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

// Decode extracts content[key] as T. It fails explicitly when the key is
// missing or the value does not fit T.
func Decode[T any](content Content, key string) (T, error) {
	var zero T
	raw, ok := content[key]
	if !ok {
		return zero, fmt.Errorf("content key %q not present", key)
	}
	switch v := raw.(type) {
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, fmt.Errorf("content key %q is nil", key)
		}
		return *v, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal content key %q: %w", key, err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("content key %q does not decode as %T: %w", key, out, err)
	}
	return out, nil
}

// Single builds a one-key Content.
func Single(key string, value any) Content {
	return Content{key: value}
}
