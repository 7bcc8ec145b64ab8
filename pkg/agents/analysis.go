package agents

import (
	"context"
	"math"
	"slices"
	"sync"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// untypedNotification is the bucket for events that carry no notification type.
const untypedNotification = "general"

// engagementBatches decodes every per-channel metric batch present in content.
func engagementBatches(content proto.Content) ([]proto.EngagementBatch, error) {
	var out []proto.EngagementBatch
	for _, key := range proto.EngagementKeys() {
		if !content.Has(key) {
			continue
		}
		b, err := proto.Decode[proto.EngagementBatch](content, key)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func eventChannel(b proto.EngagementBatch, ev proto.EngagementEvent) string {
	if ev.Channel != "" {
		return ev.Channel
	}
	return b.Channel
}

// dirtySet tracks users whose aggregates changed since the last tick.
type dirtySet map[string]struct{}

func (d dirtySet) take() []string {
	users := make([]string, 0, len(d))
	for u := range d {
		users = append(users, u)
		delete(d, u)
	}
	slices.Sort(users)
	return users
}

// FrequencyAnalysis derives a per-channel daily send cap from each user's
// engagement rate.
type FrequencyAnalysis struct {
	*agent.Runtime

	maxPerDay int
	logger    *logx.Logger
	mu        sync.Mutex
	engaged   map[string]map[string]int
	total     map[string]map[string]int
	dirty     dirtySet
}

// NewFrequencyAnalysis creates the frequency agent. maxPerDay is the ceiling a
// fully engaged user is allowed.
func NewFrequencyAnalysis(reg *dispatch.Registry, name string, maxPerDay int, opts ...agent.Option) (*FrequencyAnalysis, error) {
	f := &FrequencyAnalysis{
		maxPerDay: max(1, maxPerDay),
		engaged:   make(map[string]map[string]int),
		total:     make(map[string]map[string]int),
		dirty:     make(dirtySet),
	}
	rt, err := agent.New(reg, proto.AgentTypeFrequencyAnalysis, name, f, opts...)
	if err != nil {
		return nil, err
	}
	f.Runtime = rt
	f.logger = logx.NewLogger(rt.ID())
	return f, nil
}

func (f *FrequencyAnalysis) HandleMessage(_ context.Context, content proto.Content, _ proto.Identity) error {
	batches, err := engagementBatches(content)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range batches {
		for _, ev := range b.Events {
			ch := eventChannel(b, ev)
			if f.total[ev.UserID] == nil {
				f.total[ev.UserID] = make(map[string]int)
				f.engaged[ev.UserID] = make(map[string]int)
			}
			f.total[ev.UserID][ch]++
			if isEngaged(ev.Action) {
				f.engaged[ev.UserID][ch]++
			}
			f.dirty[ev.UserID] = struct{}{}
		}
	}
	return nil
}

func (f *FrequencyAnalysis) Process(_ context.Context) error {
	f.mu.Lock()
	var recs []proto.FrequencyRecommendation
	for _, user := range f.dirty.take() {
		for _, ch := range proto.AllChannels() {
			total := f.total[user][ch]
			if total == 0 {
				continue
			}
			rate := float64(f.engaged[user][ch]) / float64(total)
			recs = append(recs, proto.FrequencyRecommendation{
				UserID:         user,
				Channel:        ch,
				EngagementRate: rate,
				MaxPerDay:      max(1, int(math.Round(rate*float64(f.maxPerDay)))),
			})
		}
	}
	f.mu.Unlock()

	if len(recs) == 0 {
		return nil
	}
	f.SendMessage(proto.AgentTypeUserProfile, proto.Single(proto.KeyFrequencyRecommendations, recs))
	f.logger.Debug("Sent %d frequency recommendations", len(recs))
	return nil
}

// TypeAnalysis scores how well each user engages with each notification type.
type TypeAnalysis struct {
	*agent.Runtime

	logger *logx.Logger
	mu     sync.Mutex
	scores map[string]map[string]*tally
	dirty  dirtySet
}

func NewTypeAnalysis(reg *dispatch.Registry, name string, opts ...agent.Option) (*TypeAnalysis, error) {
	t := &TypeAnalysis{
		scores: make(map[string]map[string]*tally),
		dirty:  make(dirtySet),
	}
	rt, err := agent.New(reg, proto.AgentTypeTypeAnalysis, name, t, opts...)
	if err != nil {
		return nil, err
	}
	t.Runtime = rt
	t.logger = logx.NewLogger(rt.ID())
	return t, nil
}

func (t *TypeAnalysis) HandleMessage(_ context.Context, content proto.Content, _ proto.Identity) error {
	batches, err := engagementBatches(content)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range batches {
		for _, ev := range b.Events {
			typ := ev.NotificationType
			if typ == "" {
				typ = untypedNotification
			}
			if t.scores[ev.UserID] == nil {
				t.scores[ev.UserID] = make(map[string]*tally)
			}
			tl, ok := t.scores[ev.UserID][typ]
			if !ok {
				tl = &tally{}
				t.scores[ev.UserID][typ] = tl
			}
			tl.add(actionScore(ev.Action))
			t.dirty[ev.UserID] = struct{}{}
		}
	}
	return nil
}

func (t *TypeAnalysis) Process(_ context.Context) error {
	t.mu.Lock()
	var recs []proto.ContentRecommendation
	for _, user := range t.dirty.take() {
		types := make([]string, 0, len(t.scores[user]))
		for typ := range t.scores[user] {
			types = append(types, typ)
		}
		slices.Sort(types)
		for _, typ := range types {
			recs = append(recs, proto.ContentRecommendation{
				UserID:           user,
				NotificationType: typ,
				Score:            t.scores[user][typ].mean(),
			})
		}
	}
	t.mu.Unlock()

	if len(recs) == 0 {
		return nil
	}
	t.SendMessage(proto.AgentTypeUserProfile, proto.Single(proto.KeyContentRecommendations, recs))
	t.logger.Debug("Sent %d content recommendations", len(recs))
	return nil
}

// ChannelAnalysis ranks channels per user by mean engagement score.
type ChannelAnalysis struct {
	*agent.Runtime

	logger *logx.Logger
	mu     sync.Mutex
	scores map[string]map[string]*tally
	dirty  dirtySet
}

func NewChannelAnalysis(reg *dispatch.Registry, name string, opts ...agent.Option) (*ChannelAnalysis, error) {
	c := &ChannelAnalysis{
		scores: make(map[string]map[string]*tally),
		dirty:  make(dirtySet),
	}
	rt, err := agent.New(reg, proto.AgentTypeChannelAnalysis, name, c, opts...)
	if err != nil {
		return nil, err
	}
	c.Runtime = rt
	c.logger = logx.NewLogger(rt.ID())
	return c, nil
}

func (c *ChannelAnalysis) HandleMessage(_ context.Context, content proto.Content, _ proto.Identity) error {
	if !content.Has(proto.KeyChannelEngagement) {
		return nil
	}
	b, err := proto.Decode[proto.EngagementBatch](content, proto.KeyChannelEngagement)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range b.Events {
		ch := eventChannel(b, ev)
		if c.scores[ev.UserID] == nil {
			c.scores[ev.UserID] = make(map[string]*tally)
		}
		tl, ok := c.scores[ev.UserID][ch]
		if !ok {
			tl = &tally{}
			c.scores[ev.UserID][ch] = tl
		}
		tl.add(actionScore(ev.Action))
		c.dirty[ev.UserID] = struct{}{}
	}
	return nil
}

func (c *ChannelAnalysis) Process(_ context.Context) error {
	c.mu.Lock()
	var recs []proto.ChannelRecommendation
	for _, user := range c.dirty.take() {
		recs = append(recs, rankChannels(user, c.scores[user]))
	}
	c.mu.Unlock()

	if len(recs) == 0 {
		return nil
	}
	c.SendMessage(proto.AgentTypeUserProfile, proto.Single(proto.KeyChannelRecommendations, recs))
	c.logger.Debug("Sent %d channel recommendations", len(recs))
	return nil
}

// rankChannels normalizes mean scores against the best channel. Ties go to the
// channel listed first in proto.AllChannels.
func rankChannels(user string, byChannel map[string]*tally) proto.ChannelRecommendation {
	rec := proto.ChannelRecommendation{UserID: user, Scores: make(map[string]float64)}

	best := 0.0
	for _, ch := range proto.AllChannels() {
		tl, ok := byChannel[ch]
		if !ok {
			continue
		}
		m := tl.mean()
		rec.Scores[ch] = m
		if m > best {
			best = m
			rec.PreferredChannel = ch
		}
	}
	if best > 0 {
		for ch, s := range rec.Scores {
			rec.Scores[ch] = s / best
		}
	}
	return rec
}
