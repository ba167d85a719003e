package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	Actor       Identity `json:"-"`
	Username    string   `json:"username"`
	OldPassword string   `json:"old_password"`
	NewPassword string   `json:"new_password"`
}

func (e ChangePasswordMessage) Type() string { return "account.password.change" }

// ChangePasswordHandler replaces the account's password hash. The actor
// must pass the authorization gate; a self-service change additionally has
// to present the current password, while an elevated actor does not.
type ChangePasswordHandler struct {
	repo     RepositoryManager
	gate     AuthorizationGate
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewChangePasswordHandler creates a handler with sane defaults.
func NewChangePasswordHandler(repo RepositoryManager) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:     repo,
		gate:     NewAuthorizationGate(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithAuthorizationGate overrides the capability check.
func (h *ChangePasswordHandler) WithAuthorizationGate(gate AuthorizationGate) *ChangePasswordHandler {
	if gate != nil {
		h.gate = gate
	}
	return h
}

// WithActivitySink sets the sink used to emit the password change event.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ChangePasswordHandler) WithClock(clock func() time.Time) *ChangePasswordHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	if err := h.gate.Allow(event.Actor, OpChangePassword, event.Username); err != nil {
		return err
	}

	if err := validation.Validate(event.NewPassword, validation.Required, validation.Length(8, 254)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password").
			WithCode(goerrors.CodeBadRequest)
	}

	selfService := event.Actor != nil &&
		NormalizeUsername(event.Actor.Username()) == NormalizeUsername(event.Username)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByUsernameTx(ctx, tx, event.Username)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("account not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"username": event.Username})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
		}

		if selfService {
			if err := ComparePasswordAndHash(event.OldPassword, user.PasswordHash); err != nil {
				return ErrInvalidCredentials
			}
		}

		hash, err := HashPassword(event.NewPassword)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := h.repo.Users().SetPasswordHashTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update password")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change failed")
	}

	h.recordActivity(ctx, event.Actor, user)

	return nil
}

func (h *ChangePasswordHandler) recordActivity(ctx context.Context, actor Identity, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		Actor:      actorRef(actor),
		UserID:     user.ID.String(),
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password change: %v", err)
	}
}
