package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RequestEmailChangeMessage struct {
	Actor    Identity `json:"-"`
	Username string   `json:"username"`
	NewEmail string   `json:"new_email"`
}

func (e RequestEmailChangeMessage) Type() string { return "account.email.change_request" }

// RequestEmailChangeResult carries the confirmation key for delivery to the
// proposed address.
type RequestEmailChangeResult struct {
	User            *User
	NewEmail        string
	ConfirmationKey string
}

// RequestEmailChangeHandler stages an email change without touching the
// account's current address. Any previous pending change for the user is
// superseded: its row is deleted and its key stops resolving.
type RequestEmailChangeHandler struct {
	repo     RepositoryManager
	gate     AuthorizationGate
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewRequestEmailChangeHandler creates a handler with sane defaults.
func NewRequestEmailChangeHandler(repo RepositoryManager) *RequestEmailChangeHandler {
	return &RequestEmailChangeHandler{
		repo:     repo,
		gate:     NewAuthorizationGate(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithAuthorizationGate overrides the capability check.
func (h *RequestEmailChangeHandler) WithAuthorizationGate(gate AuthorizationGate) *RequestEmailChangeHandler {
	if gate != nil {
		h.gate = gate
	}
	return h
}

// WithActivitySink sets the sink used to emit email change events.
func (h *RequestEmailChangeHandler) WithActivitySink(sink ActivitySink) *RequestEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestEmailChangeHandler) WithLogger(logger Logger) *RequestEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *RequestEmailChangeHandler) WithClock(clock func() time.Time) *RequestEmailChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RequestEmailChangeHandler) Execute(ctx context.Context, event RequestEmailChangeMessage) (*RequestEmailChangeResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailChangeHandler) execute(ctx context.Context, event RequestEmailChangeMessage) (*RequestEmailChangeResult, error) {
	if err := h.gate.Allow(event.Actor, OpChangeEmail, event.Username); err != nil {
		return nil, err
	}

	if err := validation.Validate(event.NewEmail, validation.Required, is.Email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email address").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result := &RequestEmailChangeResult{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByUsernameTx(ctx, tx, event.Username)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("account not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"username": event.Username})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
		}

		if strings.EqualFold(user.Email, event.NewEmail) {
			return goerrors.New("new email must differ from the current one", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}

		// Supersede: at most one pending change per user.
		if err := h.repo.EmailChanges().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not supersede pending email change")
		}

		key, err := GenerateKey()
		if err != nil {
			return err
		}

		change := &EmailChange{
			UserID:          &user.ID,
			ConfirmationKey: key,
			NewEmail:        event.NewEmail,
			KeyIssuedAt:     h.now(),
		}

		if _, err := h.repo.EmailChanges().CreateTx(ctx, tx, change); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create email change record")
		}

		result.User = user
		result.NewEmail = event.NewEmail
		result.ConfirmationKey = key

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email change request failed")
	}

	h.recordActivity(ctx, event.Actor, result)

	return result, nil
}

func (h *RequestEmailChangeHandler) recordActivity(ctx context.Context, actor Identity, result *RequestEmailChangeResult) {
	if result == nil || result.User == nil {
		return
	}

	event := ActivityEvent{
		EventType:  ActivityEventEmailChangeRequested,
		Actor:      actorRef(actor),
		UserID:     result.User.ID.String(),
		PrevEmail:  result.User.Email,
		NewEmail:   result.NewEmail,
		OccurredAt: h.now(),
		Metadata: map[string]any{
			"confirmation_key": result.ConfirmationKey,
		},
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email change request: %v", err)
	}
}

type ConfirmEmailChangeMessage struct {
	Key string `json:"key"`
}

func (e ConfirmEmailChangeMessage) Type() string { return "account.email.confirm" }

// ConfirmEmailChangeResult reports the applied change.
type ConfirmEmailChangeResult struct {
	User      *User
	PrevEmail string
	NewEmail  string
}

// ConfirmEmailChangeHandler applies a staged email change keyed by its
// confirmation key and deletes the record, so a key only ever works once.
type ConfirmEmailChangeHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewConfirmEmailChangeHandler creates a handler with sane defaults.
func NewConfirmEmailChangeHandler(repo RepositoryManager) *ConfirmEmailChangeHandler {
	return &ConfirmEmailChangeHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit the confirmation event.
func (h *ConfirmEmailChangeHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailChangeHandler) WithLogger(logger Logger) *ConfirmEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ConfirmEmailChangeHandler) WithClock(clock func() time.Time) *ConfirmEmailChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ConfirmEmailChangeHandler) Execute(ctx context.Context, event ConfirmEmailChangeMessage) (*ConfirmEmailChangeResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailChangeHandler) execute(ctx context.Context, event ConfirmEmailChangeMessage) (*ConfirmEmailChangeResult, error) {
	// Unknown, consumed, and superseded keys are indistinguishable on
	// purpose.
	if !ValidKeyFormat(event.Key) {
		return nil, ErrKeyNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result := &ConfirmEmailChangeResult{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		change, err := h.repo.EmailChanges().GetByConfirmationKeyTx(ctx, tx, event.Key)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrKeyNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve email change record")
		}

		if change.UserID == nil {
			return goerrors.New("email change record is not associated with a user", goerrors.CategoryInternal)
		}

		user, err := h.repo.Users().GetByID(ctx, change.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for email change")
		}

		result.PrevEmail = user.Email
		result.NewEmail = change.NewEmail

		if err := h.repo.Users().SetEmailTx(ctx, tx, user.ID, change.NewEmail); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not apply email change")
		}

		if err := h.repo.EmailChanges().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not consume confirmation key")
		}

		user.Email = change.NewEmail
		result.User = user

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "email change confirmation failed")
	}

	h.recordActivity(ctx, result)

	return result, nil
}

func (h *ConfirmEmailChangeHandler) recordActivity(ctx context.Context, result *ConfirmEmailChangeResult) {
	if result == nil || result.User == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventEmailChanged,
		Actor: ActorRef{
			ID:   result.User.ID.String(),
			Type: "user",
		},
		UserID:     result.User.ID.String(),
		PrevEmail:  result.PrevEmail,
		NewEmail:   result.NewEmail,
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email change confirmation: %v", err)
	}
}

func actorRef(actor Identity) ActorRef {
	if actor == nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: actor.ID(), Type: "user"}
}
