package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"notifier/internal/kernel"
	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// simUser is a synthetic user whose activity level sets how often they
// engage and which channel they favor.
type simUser struct {
	id       string
	favorite string
	activity float64
}

//nolint:gochecknoglobals // read-only tables
var (
	activityLevels    = []float64{0.9, 0.6, 0.3}
	notificationTypes = []string{"promo", "reminder", "alert", "digest"}
	engagedActions    = []string{proto.ActionOpen, proto.ActionClick}
	ignoredActions    = []string{proto.ActionDismiss, proto.ActionMute}
)

type simulator struct {
	kernel *kernel.Kernel
	rng    *rand.Rand
	logger *logx.Logger
	users  []simUser
}

func newSimulator(k *kernel.Kernel, n int) *simulator {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	channels := proto.AllChannels()

	users := make([]simUser, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, simUser{
			id:       fmt.Sprintf("user-%03d", i+1),
			favorite: channels[rng.IntN(len(channels))],
			activity: activityLevels[i%len(activityLevels)],
		})
	}
	return &simulator{kernel: k, rng: rng, logger: logx.NewLogger("simulator"), users: users}
}

// Run emits one batch of engagement and notification requests per interval.
func (s *simulator) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, notes := s.batch()
			s.logger.Info("Simulated %d engagement events and %d notifications", events, notes)
		}
	}
}

func (s *simulator) batch() (events, notes int) {
	now := time.Now().UTC()
	for _, u := range s.users {
		if s.rng.Float64() >= u.activity {
			continue
		}

		channel := u.favorite
		actions := engagedActions
		if s.rng.Float64() < 0.3 {
			channel = proto.AllChannels()[s.rng.IntN(len(proto.AllChannels()))]
			if channel != u.favorite {
				actions = ignoredActions
			}
		}
		ev := proto.EngagementEvent{
			UserID:           u.id,
			NotificationID:   uuid.NewString(),
			NotificationType: notificationTypes[s.rng.IntN(len(notificationTypes))],
			Channel:          channel,
			Action:           actions[s.rng.IntN(len(actions))],
			Timestamp:        now,
		}
		if _, err := s.kernel.RecordEngagement(ev); err != nil {
			s.logger.Warn("Failed to record engagement: %v", err)
			continue
		}
		events++

		if s.rng.Float64() < 0.5 {
			typ := notificationTypes[s.rng.IntN(len(notificationTypes))]
			s.kernel.Submit(proto.Notification{
				ID:      uuid.NewString(),
				UserID:  u.id,
				Type:    typ,
				Content: fmt.Sprintf("Your %s update", typ),
			})
			notes++
		}
	}
	return events, notes
}
