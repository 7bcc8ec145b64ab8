package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

const (
	// DefaultChannel is used for users with no channel history.
	DefaultChannel = proto.ChannelEmail
	// MaxRouteAttempts bounds how many ticks a notification waits for a
	// channel service to appear before it is dropped.
	MaxRouteAttempts = 3
)

// ErrUnexpectedSender is returned when a message arrives from an agent type
// that is not allowed to send it.
var ErrUnexpectedSender = errors.New("unexpected sender")

type pendingNotification struct {
	notification proto.Notification
	attempts     int
}

// Recommendation picks a channel and time for each new notification using the
// latest user profiles.
type Recommendation struct {
	*agent.Runtime

	logger   *logx.Logger
	mu       sync.Mutex
	profiles map[string]proto.UserProfile
	pending  []*pendingNotification
	dropped  int
}

func NewRecommendation(reg *dispatch.Registry, name string, opts ...agent.Option) (*Recommendation, error) {
	r := &Recommendation{profiles: make(map[string]proto.UserProfile)}
	rt, err := agent.New(reg, proto.AgentTypeRecommendation, name, r, opts...)
	if err != nil {
		return nil, err
	}
	r.Runtime = rt
	r.logger = logx.NewLogger(rt.ID())
	return r, nil
}

func (r *Recommendation) HandleMessage(_ context.Context, content proto.Content, sender proto.Identity) error {
	if content.Has(proto.KeyUpdatedProfiles) {
		if sender.AgentType != proto.AgentTypeUserProfile {
			return fmt.Errorf("%w: %s sent %s", ErrUnexpectedSender, sender.AgentType, proto.KeyUpdatedProfiles)
		}
		profiles, err := proto.Decode[[]proto.UserProfile](content, proto.KeyUpdatedProfiles)
		if err != nil {
			return err
		}
		r.mu.Lock()
		for _, p := range profiles {
			r.profiles[p.UserID] = p
		}
		r.mu.Unlock()
	}

	if content.Has(proto.KeyNewNotification) {
		n, err := proto.Decode[proto.Notification](content, proto.KeyNewNotification)
		if err != nil {
			return err
		}
		if n.UserID == "" {
			return fmt.Errorf("notification %q has no user_id", n.ID)
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		r.mu.Lock()
		r.pending = append(r.pending, &pendingNotification{notification: n})
		r.mu.Unlock()
	}
	return nil
}

// ChooseChannel returns the profile's preferred channel, else its best scored
// channel, else DefaultChannel.
func ChooseChannel(p proto.UserProfile, ok bool) string {
	if !ok {
		return DefaultChannel
	}
	if _, known := proto.ServiceForChannel(p.PreferredChannel); known {
		return p.PreferredChannel
	}
	best, bestScore := "", 0.0
	for _, ch := range proto.AllChannels() {
		if s, has := p.ChannelScores[ch]; has && s > bestScore {
			best, bestScore = ch, s
		}
	}
	if best == "" {
		return DefaultChannel
	}
	return best
}

func (r *Recommendation) Process(_ context.Context) error {
	now := r.Now().UTC()

	r.mu.Lock()
	work := r.pending
	r.pending = nil
	r.mu.Unlock()

	var retry []*pendingNotification
	for _, p := range work {
		n := p.notification

		r.mu.Lock()
		prof, ok := r.profiles[n.UserID]
		r.mu.Unlock()

		channel := ChooseChannel(prof, ok)
		when := now
		if n.ScheduledAt.After(now) {
			when = n.ScheduledAt.UTC()
		}
		service, _ := proto.ServiceForChannel(channel)

		rec := proto.DeliveryRecommendation{
			NotificationID:     n.ID,
			UserID:             n.UserID,
			NotificationType:   n.Type,
			Content:            n.Content,
			RecommendedChannel: channel,
			RecommendedTime:    when,
		}
		if r.SendMessage(service, proto.Single(proto.KeyDeliveryRecommendation, rec)) > 0 {
			r.logger.Info("Recommended %s at %s for notification %s", channel, when.Format("15:04:05"), n.ID)
			continue
		}

		p.attempts++
		if p.attempts >= MaxRouteAttempts {
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.logger.Error("Dropping notification %s: no %s agent after %d attempts", n.ID, service, p.attempts)
			continue
		}
		retry = append(retry, p)
	}

	if len(retry) > 0 {
		r.mu.Lock()
		r.pending = append(retry, r.pending...)
		r.mu.Unlock()
	}
	return nil
}

// Pending returns how many notifications wait to be routed.
func (r *Recommendation) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Dropped returns how many notifications were abandoned for lack of a route.
func (r *Recommendation) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
