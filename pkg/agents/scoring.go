package agents

import "notifier/pkg/proto"

// actionScore maps an engagement action to an engagement level in [0, 1].
func actionScore(action string) float64 {
	switch action {
	case proto.ActionClick:
		return 1.0
	case proto.ActionOpen:
		return 0.6
	case proto.ActionDismiss:
		return 0.1
	default:
		return 0
	}
}

func isEngaged(action string) bool {
	return action == proto.ActionOpen || action == proto.ActionClick
}

// tally accumulates a running mean.
type tally struct {
	sum   float64
	count int
}

func (t *tally) add(v float64) {
	t.sum += v
	t.count++
}

func (t tally) mean() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
