package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported lifecycle events.
type ActivityEventType string

const (
	ActivityEventSignupComplete       ActivityEventType = "account.signup.complete"
	ActivityEventActivated            ActivityEventType = "account.activated"
	ActivityEventEmailChangeRequested ActivityEventType = "account.email.change_requested"
	ActivityEventEmailChanged         ActivityEventType = "account.email.changed"
	ActivityEventPasswordChanged      ActivityEventType = "account.password.changed"
	ActivityEventProfileChanged       ActivityEventType = "account.profile.changed"
	ActivityEventUserStatusChanged    ActivityEventType = "account.status.changed"
	ActivityEventSignInSuccess        ActivityEventType = "auth.signin.success"
	ActivityEventSignInFailure        ActivityEventType = "auth.signin.failure"
	ActivityEventSignOut              ActivityEventType = "auth.signout"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about a lifecycle
// transition. For email changes PrevEmail/NewEmail carry the before and
// after values.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
	PrevEmail  string
	NewEmail   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for mailers, audit logs, and
// telemetry. Delivery is fire-and-forget: sinks run after the triggering
// mutation has committed, and a sink failure must never unwind it.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
