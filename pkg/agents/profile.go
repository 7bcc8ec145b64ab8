package agents

import (
	"context"
	"maps"
	"sync"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// UserProfile merges the three analysis streams into one profile per user and
// publishes changed profiles to the recommendation layer.
type UserProfile struct {
	*agent.Runtime

	logger   *logx.Logger
	mu       sync.Mutex
	profiles map[string]*proto.UserProfile
	caps     map[string]map[string]int
	dirty    dirtySet
}

func NewUserProfile(reg *dispatch.Registry, name string, opts ...agent.Option) (*UserProfile, error) {
	p := &UserProfile{
		profiles: make(map[string]*proto.UserProfile),
		caps:     make(map[string]map[string]int),
		dirty:    make(dirtySet),
	}
	rt, err := agent.New(reg, proto.AgentTypeUserProfile, name, p, opts...)
	if err != nil {
		return nil, err
	}
	p.Runtime = rt
	p.logger = logx.NewLogger(rt.ID())
	return p, nil
}

func (p *UserProfile) profile(user string) *proto.UserProfile {
	prof, ok := p.profiles[user]
	if !ok {
		prof = &proto.UserProfile{
			UserID:        user,
			ChannelScores: make(map[string]float64),
			TypeScores:    make(map[string]float64),
		}
		p.profiles[user] = prof
	}
	p.dirty[user] = struct{}{}
	return prof
}

func (p *UserProfile) HandleMessage(_ context.Context, content proto.Content, _ proto.Identity) error {
	if content.Has(proto.KeyFrequencyRecommendations) {
		recs, err := proto.Decode[[]proto.FrequencyRecommendation](content, proto.KeyFrequencyRecommendations)
		if err != nil {
			return err
		}
		p.mu.Lock()
		for _, r := range recs {
			if p.caps[r.UserID] == nil {
				p.caps[r.UserID] = make(map[string]int)
			}
			p.caps[r.UserID][r.Channel] = r.MaxPerDay
			p.refreshCap(p.profile(r.UserID))
		}
		p.mu.Unlock()
	}

	if content.Has(proto.KeyChannelRecommendations) {
		recs, err := proto.Decode[[]proto.ChannelRecommendation](content, proto.KeyChannelRecommendations)
		if err != nil {
			return err
		}
		p.mu.Lock()
		for _, r := range recs {
			prof := p.profile(r.UserID)
			prof.PreferredChannel = r.PreferredChannel
			maps.Copy(prof.ChannelScores, r.Scores)
			p.refreshCap(prof)
		}
		p.mu.Unlock()
	}

	if content.Has(proto.KeyContentRecommendations) {
		recs, err := proto.Decode[[]proto.ContentRecommendation](content, proto.KeyContentRecommendations)
		if err != nil {
			return err
		}
		p.mu.Lock()
		for _, r := range recs {
			p.profile(r.UserID).TypeScores[r.NotificationType] = r.Score
		}
		p.mu.Unlock()
	}
	return nil
}

// refreshCap uses the preferred channel's cap when known, otherwise the
// highest cap seen on any channel.
func (p *UserProfile) refreshCap(prof *proto.UserProfile) {
	caps := p.caps[prof.UserID]
	if c, ok := caps[prof.PreferredChannel]; ok {
		prof.MaxPerDay = c
		return
	}
	best := 0
	for _, c := range caps {
		best = max(best, c)
	}
	prof.MaxPerDay = best
}

func (p *UserProfile) Process(_ context.Context) error {
	now := p.Now().UTC()

	p.mu.Lock()
	var updated []proto.UserProfile
	for _, user := range p.dirty.take() {
		prof := p.profiles[user]
		prof.UpdatedAt = now
		updated = append(updated, cloneProfile(prof))
	}
	p.mu.Unlock()

	if len(updated) == 0 {
		return nil
	}
	p.SendMessage(proto.AgentTypeRecommendation, proto.Single(proto.KeyUpdatedProfiles, updated))
	p.logger.Info("Published %d updated profiles", len(updated))
	return nil
}

// Profile returns a copy of user's profile.
func (p *UserProfile) Profile(user string) (proto.UserProfile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prof, ok := p.profiles[user]
	if !ok {
		return proto.UserProfile{}, false
	}
	return cloneProfile(prof), true
}

func cloneProfile(p *proto.UserProfile) proto.UserProfile {
	out := *p
	out.ChannelScores = maps.Clone(p.ChannelScores)
	out.TypeScores = maps.Clone(p.TypeScores)
	return out
}
