package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notifier/pkg/logx"
	"notifier/pkg/proto"
)

// Sender hands one notification to an outbound transport.
type Sender interface {
	Send(ctx context.Context, channel string, rec proto.DeliveryRecommendation) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, channel string, rec proto.DeliveryRecommendation) error

func (f SenderFunc) Send(ctx context.Context, channel string, rec proto.DeliveryRecommendation) error {
	return f(ctx, channel, rec)
}

// LogSender only logs. It stands in for real transports.
type LogSender struct {
	logger *logx.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: logx.NewLogger("sender")}
}

func (s *LogSender) Send(_ context.Context, channel string, rec proto.DeliveryRecommendation) error {
	s.logger.Info("Sending %s notification %s to user %s: %s", channel, rec.NotificationID, rec.UserID, rec.Content)
	return nil
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, reject sends
	CircuitHalfOpen                     // Probing whether the transport recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines when a BreakerSender opens and closes.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open needed to close
	Timeout          time.Duration // Time open before probing
	MaxProbes        int           // Concurrent sends allowed in half-open
}

// DefaultBreakerConfig provides reasonable defaults.
var DefaultBreakerConfig = BreakerConfig{ //nolint:gochecknoglobals
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          30 * time.Second,
	MaxProbes:        1,
}

// BreakerOpenError is returned without calling the transport while the
// circuit rejects sends.
type BreakerOpenError struct {
	Channel string
	State   CircuitState
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("%s sender circuit breaker is %s", e.Channel, e.State)
}

type breaker struct {
	lastFailure time.Time
	state       CircuitState
	failures    int
	successes   int
	probes      int
}

// BreakerSender wraps a Sender with one circuit breaker per channel, so a
// failing transport stops being called until it has had time to recover.
type BreakerSender struct {
	next     Sender
	config   BreakerConfig
	now      func() time.Time
	logger   *logx.Logger
	mu       sync.Mutex
	channels map[string]*breaker
}

func NewBreakerSender(next Sender, cfg BreakerConfig) *BreakerSender {
	return &BreakerSender{
		next:     next,
		config:   cfg,
		now:      time.Now,
		logger:   logx.NewLogger("breaker"),
		channels: make(map[string]*breaker),
	}
}

func (b *BreakerSender) Send(ctx context.Context, channel string, rec proto.DeliveryRecommendation) error {
	if err := b.allow(channel); err != nil {
		return err
	}

	err := b.next.Send(ctx, channel, rec)
	b.recordResult(channel, err == nil)
	if err != nil {
		return fmt.Errorf("%s send failed: %w", channel, err)
	}
	return nil
}

// State returns the breaker state for channel.
func (b *BreakerSender) State(channel string) CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if br, ok := b.channels[channel]; ok {
		return br.state
	}
	return CircuitClosed
}

// Reset closes every circuit.
func (b *BreakerSender) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = make(map[string]*breaker)
}

func (b *BreakerSender) get(channel string) *breaker {
	br, ok := b.channels[channel]
	if !ok {
		br = &breaker{}
		b.channels[channel] = br
	}
	return br
}

func (b *BreakerSender) allow(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(channel)
	switch br.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if b.now().Sub(br.lastFailure) >= b.config.Timeout {
			br.state = CircuitHalfOpen
			br.probes = 1
			br.successes = 0
			return nil
		}
		return &BreakerOpenError{Channel: channel, State: CircuitOpen}

	case CircuitHalfOpen:
		if br.probes >= b.config.MaxProbes {
			return &BreakerOpenError{Channel: channel, State: CircuitHalfOpen}
		}
		br.probes++
		return nil

	default:
		return &BreakerOpenError{Channel: channel, State: br.state}
	}
}

func (b *BreakerSender) recordResult(channel string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.get(channel)
	if br.state == CircuitHalfOpen {
		br.probes--
	}

	if success {
		switch br.state {
		case CircuitClosed:
			br.failures = 0
		case CircuitHalfOpen:
			br.successes++
			if br.successes >= b.config.SuccessThreshold {
				br.state = CircuitClosed
				br.failures = 0
				br.successes = 0
				b.logger.Info("Circuit for %s closed", channel)
			}
		}
		return
	}

	br.failures++
	br.lastFailure = b.now()
	switch br.state {
	case CircuitClosed:
		if br.failures >= b.config.FailureThreshold {
			br.state = CircuitOpen
			b.logger.Error("Circuit for %s opened after %d failures", channel, br.failures)
		}
	case CircuitHalfOpen:
		// Any failure while probing reopens.
		br.state = CircuitOpen
		br.successes = 0
		b.logger.Error("Circuit for %s reopened from HALF_OPEN", channel)
	}
}
