package accounts

import (
	"context"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// usernamePattern matches the characters we accept in public handles.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]+$`)

// forbiddenUsernames are handles that collide with routes or reserved words.
var forbiddenUsernames = map[string]struct{}{
	"signup":   {},
	"signin":   {},
	"signout":  {},
	"activate": {},
	"me":       {},
	"password": {},
	"admin":    {},
}

type SignupMessage struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Privacy   string `json:"privacy"`
	UseHashid bool   `json:"-"`
}

func (e SignupMessage) Type() string { return "account.signup" }

// SignupResult is what a completed signup hands back to the caller. The
// activation key is only set when activation is required; it is meant for
// the delivery channel (mailer), never for display.
type SignupResult struct {
	User          *User
	Profile       *Profile
	ActivationKey string
}

// SignupHandler creates the user, its profile, and, when activation is
// required, the activation record in a single transaction.
type SignupHandler struct {
	repo     RepositoryManager
	config   Config
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewSignupHandler creates a handler with sane defaults.
func NewSignupHandler(repo RepositoryManager, config Config) *SignupHandler {
	return &SignupHandler{
		repo:     repo,
		config:   config,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit signup events.
func (h *SignupHandler) WithActivitySink(sink ActivitySink) *SignupHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignupHandler) WithLogger(logger Logger) *SignupHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *SignupHandler) WithClock(clock func() time.Time) *SignupHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *SignupHandler) Execute(ctx context.Context, event SignupMessage) (*SignupResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupHandler) execute(ctx context.Context, event SignupMessage) (*SignupResult, error) {
	if err := h.validate(event); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result := &SignupResult{}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user := &User{
			Username:     NormalizeUsername(getUsername(event.Username, event.Email)),
			Email:        event.Email,
			PasswordHash: hash,
			Role:         RoleMember,
		}

		if h.config.ActivationRequired {
			user.Status = UserStatusUnverified
		} else {
			user.Status = UserStatusActive
		}

		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		profile := &Profile{
			UserID:    &user.ID,
			Privacy:   event.Privacy,
			FirstName: event.FirstName,
			LastName:  event.LastName,
		}

		if profile, err = h.repo.Profiles().CreateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create profile")
		}

		result.User = user
		result.Profile = profile

		if !h.config.ActivationRequired {
			return nil
		}

		key, err := GenerateKey()
		if err != nil {
			return err
		}

		signup := &Signup{
			UserID:        &user.ID,
			ActivationKey: key,
			KeyIssuedAt:   h.now(),
		}

		if _, err = h.repo.Signups().CreateTx(ctx, tx, signup); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create activation record")
		}

		result.ActivationKey = key

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "signup transaction failed")
	}

	h.recordActivity(ctx, result)

	return result, nil
}

func (h *SignupHandler) validate(event SignupMessage) error {
	rules := []*validation.FieldRules{
		validation.Field(&event.Email, validation.Required, is.Email),
		validation.Field(&event.Password, validation.Required, validation.Length(8, 254)),
	}

	if !h.config.WithoutUsernames {
		rules = append(rules, validation.Field(&event.Username,
			validation.Required,
			validation.Length(3, 30),
			validation.Match(usernamePattern),
		))
	}

	if err := validation.ValidateStruct(&event, rules...); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload").
			WithCode(goerrors.CodeBadRequest)
	}

	username := NormalizeUsername(getUsername(event.Username, event.Email))
	if _, taken := forbiddenUsernames[username]; taken {
		return goerrors.New("username is reserved", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"username": username})
	}

	return nil
}

func (h *SignupHandler) recordActivity(ctx context.Context, result *SignupResult) {
	if result == nil || result.User == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventSignupComplete,
		Actor: ActorRef{
			ID:   result.User.ID.String(),
			Type: "user",
		},
		UserID:   result.User.ID.String(),
		ToStatus: result.User.Status,
		Metadata: map[string]any{
			"activation_required": h.config.ActivationRequired,
		},
		OccurredAt: h.now(),
	}

	if result.ActivationKey != "" {
		event.Metadata["activation_key"] = result.ActivationKey
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during signup: %v", err)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
