package agents

import (
	"context"
	"fmt"
	"sync"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// Collector buffers raw engagement events for one channel and forwards them
// to the analysis layer once per tick. It also tallies delivery outcomes
// reported back by the channel service.
type Collector struct {
	*agent.Runtime

	channel    string
	metricKey  string
	logger     *logx.Logger
	mu         sync.Mutex
	pending    []proto.EngagementEvent
	deliveries map[string]int
}

// NewCollector creates the data collection agent for channel.
func NewCollector(reg *dispatch.Registry, channel, name string, opts ...agent.Option) (*Collector, error) {
	agentType, ok := proto.CollectorForChannel(channel)
	if !ok {
		return nil, fmt.Errorf("no collector for channel %q", channel)
	}
	key, _ := proto.EngagementKeyForChannel(channel)

	c := &Collector{
		channel:    channel,
		metricKey:  key,
		deliveries: make(map[string]int),
	}
	rt, err := agent.New(reg, agentType, name, c, opts...)
	if err != nil {
		return nil, err
	}
	c.Runtime = rt
	c.logger = logx.NewLogger(rt.ID())
	return c, nil
}

func (c *Collector) Channel() string { return c.channel }

func (c *Collector) HandleMessage(_ context.Context, content proto.Content, sender proto.Identity) error {
	switch {
	case content.Has(proto.KeyEngagementEvent):
		ev, err := proto.Decode[proto.EngagementEvent](content, proto.KeyEngagementEvent)
		if err != nil {
			return err
		}
		if ev.Channel == "" {
			ev.Channel = c.channel
		}
		if ev.Channel != c.channel {
			return fmt.Errorf("engagement event for channel %s sent to %s collector", ev.Channel, c.channel)
		}
		c.mu.Lock()
		c.pending = append(c.pending, ev)
		c.mu.Unlock()

	case content.Has(proto.KeyDeliveryData):
		results, err := proto.Decode[[]proto.DeliveryData](content, proto.KeyDeliveryData)
		if err != nil {
			return err
		}
		c.mu.Lock()
		for _, d := range results {
			c.deliveries[d.Status]++
		}
		c.mu.Unlock()
		c.logger.Debug("Received %d delivery results from %s", len(results), sender.AgentName)
	}
	return nil
}

// Process forwards buffered events: the per-channel batch to frequency and
// type analysis, and the channel_engagement batch to channel analysis.
func (c *Collector) Process(_ context.Context) error {
	c.mu.Lock()
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	batch := proto.EngagementBatch{Channel: c.channel, Events: events}
	c.SendMessage(proto.AgentTypeFrequencyAnalysis, proto.Single(c.metricKey, batch))
	c.SendMessage(proto.AgentTypeTypeAnalysis, proto.Single(c.metricKey, batch))
	c.SendMessage(proto.AgentTypeChannelAnalysis, proto.Single(proto.KeyChannelEngagement, batch))

	c.logger.Info("Forwarded %d %s engagement events to analysis", len(events), c.channel)
	return nil
}

// DeliveryCounts returns delivery outcomes reported so far, by status.
func (c *Collector) DeliveryCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.deliveries))
	for k, v := range c.deliveries {
		out[k] = v
	}
	return out
}

// Buffered returns how many events wait for the next tick.
func (c *Collector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
