package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ActivateMessage struct {
	Key string `json:"key"`
}

func (e ActivateMessage) Type() string { return "account.activate" }

// ActivateHandler consumes an activation key: it moves the account from
// unverified to active and deletes the activation record so the key can
// never be honored twice.
type ActivateHandler struct {
	repo         RepositoryManager
	config       Config
	activity     ActivitySink
	logger       Logger
	stateMachine AccountStateMachine
	now          func() time.Time
}

// NewActivateHandler creates a handler with sane defaults.
func NewActivateHandler(repo RepositoryManager, config Config) *ActivateHandler {
	return &ActivateHandler{
		repo:     repo,
		config:   config,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit activation events.
func (h *ActivateHandler) WithActivitySink(sink ActivitySink) *ActivateHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateHandler) WithLogger(logger Logger) *ActivateHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithStateMachine overrides the machine driving the status change.
func (h *ActivateHandler) WithStateMachine(sm AccountStateMachine) *ActivateHandler {
	if sm != nil {
		h.stateMachine = sm
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ActivateHandler) WithClock(clock func() time.Time) *ActivateHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ActivateHandler) Execute(ctx context.Context, event ActivateMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateHandler) execute(ctx context.Context, event ActivateMessage) (*User, error) {
	// A malformed key can not exist, so it gets the same answer as a
	// consumed or unknown one.
	if !ValidKeyFormat(event.Key) {
		return nil, ErrKeyNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		signup, err := h.repo.Signups().GetByActivationKeyTx(ctx, tx, event.Key)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrKeyNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve activation record")
		}

		// Expiry only matters when an expired key can be replaced. With
		// reissue disabled the key stays honorable regardless of age.
		if h.config.ActivationRetry && signup.KeyExpired(h.config.activationWindow(), h.now()) {
			return ErrKeyExpired
		}

		if signup.UserID == nil {
			return goerrors.New("activation record is not associated with a user", goerrors.CategoryInternal)
		}

		user, err = h.repo.Users().GetByID(ctx, signup.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for activation")
		}

		actor := ActorRef{ID: user.ID.String(), Type: "user"}
		user, err = h.machine().TransitionTx(ctx, tx, actor, user, UserStatusActive,
			WithTransitionReason("account activation"),
		)
		if err != nil {
			return err
		}

		if err := h.repo.Signups().DeleteByUserIDTx(ctx, tx, *signup.UserID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not consume activation key")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "account activation failed")
	}

	h.recordActivity(ctx, user)

	return user, nil
}

func (h *ActivateHandler) machine() AccountStateMachine {
	if h.stateMachine == nil {
		h.stateMachine = NewAccountStateMachine(
			h.repo.Users(),
			WithStateMachineActivitySink(h.activity),
			WithStateMachineLogger(h.logger),
		)
	}
	return h.stateMachine
}

func (h *ActivateHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventActivated,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		FromStatus: UserStatusUnverified,
		ToStatus:   UserStatusActive,
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation: %v", err)
	}
}

type ActivateRetryMessage struct {
	Key string `json:"key"`
}

func (e ActivateRetryMessage) Type() string { return "account.activate_retry" }

// ActivateRetryResult carries the replacement key for delivery.
type ActivateRetryResult struct {
	User          *User
	ActivationKey string
}

// ActivateRetryHandler reissues an expired activation key: the old key is
// replaced on the same record with a fresh issue timestamp, so it stops
// resolving the moment the new one exists.
type ActivateRetryHandler struct {
	repo     RepositoryManager
	config   Config
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewActivateRetryHandler creates a handler with sane defaults.
func NewActivateRetryHandler(repo RepositoryManager, config Config) *ActivateRetryHandler {
	return &ActivateRetryHandler{
		repo:     repo,
		config:   config,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit reissue events.
func (h *ActivateRetryHandler) WithActivitySink(sink ActivitySink) *ActivateRetryHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateRetryHandler) WithLogger(logger Logger) *ActivateRetryHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ActivateRetryHandler) WithClock(clock func() time.Time) *ActivateRetryHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ActivateRetryHandler) Execute(ctx context.Context, event ActivateRetryMessage) (*ActivateRetryResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation key reissue",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateRetryHandler) execute(ctx context.Context, event ActivateRetryMessage) (*ActivateRetryResult, error) {
	// Fails closed: when reissue is disabled the expired key already gets
	// honored by the activation path, so there is nothing to retry.
	if !h.config.ActivationRetry {
		return nil, ErrRetryDisabled
	}

	if !ValidKeyFormat(event.Key) {
		return nil, ErrKeyNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result := &ActivateRetryResult{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		signup, err := h.repo.Signups().GetByActivationKeyTx(ctx, tx, event.Key)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrKeyNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve activation record")
		}

		if !signup.KeyExpired(h.config.activationWindow(), h.now()) {
			return ErrKeyNotExpired
		}

		key, err := GenerateKey()
		if err != nil {
			return err
		}

		signup.ActivationKey = key
		signup.KeyIssuedAt = h.now()

		if _, err := h.repo.Signups().UpdateTx(ctx, tx, signup); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not replace activation key")
		}

		if signup.UserID != nil {
			if result.User, err = h.repo.Users().GetByID(ctx, signup.UserID.String()); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for reissue")
			}
		}

		result.ActivationKey = key

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "activation key reissue failed")
	}

	h.recordActivity(ctx, result)

	return result, nil
}

func (h *ActivateRetryHandler) recordActivity(ctx context.Context, result *ActivateRetryResult) {
	if result == nil || result.User == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventSignupComplete,
		Actor: ActorRef{
			ID:   result.User.ID.String(),
			Type: "user",
		},
		UserID: result.User.ID.String(),
		Metadata: map[string]any{
			"activation_key": result.ActivationKey,
			"reissue":        true,
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during key reissue: %v", err)
	}
}
