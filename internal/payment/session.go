package payment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/studysync/studysync/internal/telemetry"
)

// Session is the ephemeral client-side state of one checkout attempt. It is
// never persisted: if the process dies mid-payment the server-side grant
// stays pending with no local trace.
//
// A session terminates exactly once. The checkout callback, the countdown
// timer and a user cancellation all race to Resolve it; the first wins and
// every later attempt is a no-op.
type Session struct {
	order     Order
	startedAt time.Time
	deadline  time.Time

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

// NewSession opens a checkout session for the given order. ttl <= 0 uses
// DefaultSessionTTL.
func NewSession(order Order, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	return &Session{
		order:     order,
		startedAt: now,
		deadline:  now.Add(ttl),
		done:      make(chan struct{}),
	}
}

// Order returns the order descriptor this session was opened for.
func (s *Session) Order() Order {
	return s.order
}

// Deadline returns the fixed countdown deadline.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Remaining returns how long the session has left, floored at zero.
func (s *Session) Remaining() time.Duration {
	if r := time.Until(s.deadline); r > 0 {
		return r
	}
	return 0
}

// Resolve records the terminal outcome. Returns true if this call won the
// race; false means the session already terminated and the outcome was
// dropped.
func (s *Session) Resolve(outcome Outcome) bool {
	won := false
	s.once.Do(func() {
		won = true
		s.outcome = outcome
		close(s.done)

		telemetry.GetMetrics().PaymentOutcomesTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", string(outcome.Status))))
		telemetry.GetMetrics().CheckoutDuration.Record(context.Background(),
			time.Since(s.startedAt).Seconds())

		log.Info().
			Str("order_id", s.order.OrderID).
			Str("status", string(outcome.Status)).
			Msg("checkout session terminated")
	})
	return won
}

// Done is closed once the session has a terminal outcome.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session terminates: an inbound outcome, the
// countdown expiry, or ctx cancellation (treated as user cancellation).
// Whatever fires first wins; the rest become no-ops.
func (s *Session) Wait(ctx context.Context) Outcome {
	timer := time.NewTimer(time.Until(s.deadline))
	defer timer.Stop()

	select {
	case <-s.done:
	case <-timer.C:
		s.Resolve(Outcome{
			Status:  OutcomeTimeout,
			OrderID: s.order.OrderID,
			Reason:  "checkout deadline elapsed",
		})
		<-s.done
	case <-ctx.Done():
		s.Resolve(Outcome{
			Status:  OutcomeCancelled,
			OrderID: s.order.OrderID,
			Reason:  "cancelled by user",
		})
		<-s.done
	}

	return s.outcome
}
