package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/limiter"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// MaxSendAttempts bounds transport retries before a delivery is reported failed.
const MaxSendAttempts = 3

type queuedDelivery struct {
	rec       proto.DeliveryRecommendation
	notBefore time.Time
	attempts  int
	deferred  bool
}

// ChannelNotifier delivers recommendations for one channel. Deliveries wait
// for their recommended time and for the per-user limiter; users over their
// budget are deferred rather than failed.
type ChannelNotifier struct {
	*agent.Runtime

	channel string
	limiter *limiter.Limiter
	sender  Sender
	logger  *logx.Logger
	mu      sync.Mutex
	queue   []*queuedDelivery
	counts  map[string]int
}

// NewChannelNotifier creates the notification agent for channel. A nil limiter
// disables rate limiting; a nil sender uses LogSender.
func NewChannelNotifier(reg *dispatch.Registry, channel, name string, lim *limiter.Limiter, sender Sender, opts ...agent.Option) (*ChannelNotifier, error) {
	agentType, ok := proto.ServiceForChannel(channel)
	if !ok {
		return nil, fmt.Errorf("no notification service for channel %q", channel)
	}
	if sender == nil {
		sender = NewLogSender()
	}

	n := &ChannelNotifier{
		channel: channel,
		limiter: lim,
		sender:  sender,
		counts:  make(map[string]int),
	}
	rt, err := agent.New(reg, agentType, name, n, opts...)
	if err != nil {
		return nil, err
	}
	n.Runtime = rt
	n.logger = logx.NewLogger(rt.ID())
	return n, nil
}

func (n *ChannelNotifier) Channel() string { return n.channel }

func (n *ChannelNotifier) HandleMessage(_ context.Context, content proto.Content, sender proto.Identity) error {
	if !content.Has(proto.KeyDeliveryRecommendation) {
		return nil
	}
	if sender.AgentType != proto.AgentTypeRecommendation {
		return fmt.Errorf("%w: %s sent %s", ErrUnexpectedSender, sender.AgentType, proto.KeyDeliveryRecommendation)
	}
	rec, err := proto.Decode[proto.DeliveryRecommendation](content, proto.KeyDeliveryRecommendation)
	if err != nil {
		return err
	}
	if rec.RecommendedChannel != "" && rec.RecommendedChannel != n.channel {
		return fmt.Errorf("recommendation %s targets %s, not %s", rec.NotificationID, rec.RecommendedChannel, n.channel)
	}
	rec.Content = FormatContent(n.channel, rec.Content)

	n.mu.Lock()
	n.queue = append(n.queue, &queuedDelivery{rec: rec, notBefore: rec.RecommendedTime})
	n.mu.Unlock()
	return nil
}

func (n *ChannelNotifier) Process(ctx context.Context) error {
	now := n.Now().UTC()

	n.mu.Lock()
	work := n.queue
	n.queue = nil
	n.mu.Unlock()

	var (
		keep    []*queuedDelivery
		results []proto.DeliveryData
	)
	for _, q := range work {
		if q.notBefore.After(now) {
			keep = append(keep, q)
			continue
		}

		if n.limiter != nil {
			if err := n.limiter.Reserve(q.rec.UserID); err != nil {
				q.notBefore = n.limiter.NextAllowed(q.rec.UserID)
				if !q.deferred {
					q.deferred = true
					results = append(results, n.result(q.rec, proto.DeliveryStatusDeferred, err.Error(), now))
				}
				keep = append(keep, q)
				continue
			}
		}

		if err := n.sender.Send(ctx, n.channel, q.rec); err != nil {
			if n.limiter != nil {
				n.limiter.Release(q.rec.UserID)
			}
			q.attempts++
			if q.attempts >= MaxSendAttempts {
				n.logger.Error("Delivery of %s to %s failed after %d attempts: %v", q.rec.NotificationID, q.rec.UserID, q.attempts, err)
				results = append(results, n.result(q.rec, proto.DeliveryStatusFailed, err.Error(), now))
				continue
			}
			n.logger.Warn("Delivery of %s failed (attempt %d): %v", q.rec.NotificationID, q.attempts, err)
			keep = append(keep, q)
			continue
		}
		results = append(results, n.result(q.rec, proto.DeliveryStatusDelivered, "", now))
	}

	n.mu.Lock()
	n.queue = append(keep, n.queue...)
	for _, r := range results {
		n.counts[r.Status]++
	}
	n.mu.Unlock()

	if len(results) == 0 {
		return nil
	}
	collector, _ := proto.CollectorForChannel(n.channel)
	n.SendMessage(collector, proto.Single(proto.KeyDeliveryData, results))
	return nil
}

func (n *ChannelNotifier) result(rec proto.DeliveryRecommendation, status, reason string, at time.Time) proto.DeliveryData {
	return proto.DeliveryData{
		NotificationID: rec.NotificationID,
		UserID:         rec.UserID,
		Channel:        n.channel,
		Status:         status,
		Reason:         reason,
		DeliveredAt:    at,
	}
}

// Queued returns how many deliveries are waiting.
func (n *ChannelNotifier) Queued() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Counts returns delivery outcomes so far, by status.
func (n *ChannelNotifier) Counts() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int, len(n.counts))
	for k, v := range n.counts {
		out[k] = v
	}
	return out
}
