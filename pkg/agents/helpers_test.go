package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"notifier/pkg/agent"
	"notifier/pkg/dispatch"
	"notifier/pkg/proto"
)

//nolint:gochecknoglobals // test fixture
var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type stepper interface {
	ID() string
	ReceiveMessage(ctx context.Context, env *proto.Envelope) error
	Process(ctx context.Context) error
}

// step runs one tick by hand: drain the mailbox, then Process.
func step(t *testing.T, reg *dispatch.Registry, a stepper) {
	t.Helper()
	ctx := context.Background()
	reg.DrainAndHandle(a.ID(), func(env *proto.Envelope) error {
		return a.ReceiveMessage(ctx, env)
	})
	if err := a.Process(ctx); err != nil {
		t.Fatalf("Process failed for %s: %v", a.ID(), err)
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *clock) opt() agent.Option { return agent.WithClock(c.Now) }

//nolint:gochecknoglobals // test fixture
var (
	systemID = proto.Identity{AgentID: "system", AgentType: "system", AgentName: "System"}
	recID    = proto.Identity{AgentID: "recommendation_test", AgentType: proto.AgentTypeRecommendation}
	profID   = proto.Identity{AgentID: "user_profile_test", AgentType: proto.AgentTypeUserProfile}
)

func send(reg *dispatch.Registry, from proto.Identity, targetType string, content proto.Content) int {
	return reg.Deliver(targetType, proto.NewEnvelope(from, content))
}

// sink registers a bare handle under agentType and returns its id so tests can
// inspect what an agent sent.
type sink struct{ id proto.Identity }

func (s *sink) Identity() proto.Identity { return s.id }
func (s *sink) IsRunning() bool          { return true }

func newSink(reg *dispatch.Registry, agentType string) string {
	s := &sink{id: proto.Identity{AgentID: agentType + "_sink", AgentType: agentType}}
	reg.Register(agentType, s)
	return s.id.AgentID
}

type sent struct {
	channel string
	rec     proto.DeliveryRecommendation
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []sent
	fails int
	err   error
}

func (s *recordingSender) Send(_ context.Context, channel string, rec proto.DeliveryRecommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return s.err
	}
	s.sent = append(s.sent, sent{channel: channel, rec: rec})
	return nil
}

func (s *recordingSender) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

func event(user, channel, action, typ string) proto.EngagementEvent {
	return proto.EngagementEvent{
		UserID:           user,
		NotificationID:   "n-" + user,
		NotificationType: typ,
		Channel:          channel,
		Action:           action,
		Timestamp:        t0,
	}
}
