package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type EditProfileMessage struct {
	Actor    Identity `json:"-"`
	Username string   `json:"username"`

	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Picture   *string `json:"picture"`
	Phone     *string `json:"phone"`
	About     *string `json:"about"`
	Privacy   *string `json:"privacy"`

	// PhoneRegion is the default region used to parse a national phone number.
	PhoneRegion string `json:"phone_region"`
}

func (e EditProfileMessage) Type() string { return "account.profile.edit" }

// EditProfileHandler applies a partial profile update. Nil fields are left
// untouched; set fields replace the stored value.
type EditProfileHandler struct {
	repo     RepositoryManager
	gate     AuthorizationGate
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewEditProfileHandler creates a handler with sane defaults.
func NewEditProfileHandler(repo RepositoryManager) *EditProfileHandler {
	return &EditProfileHandler{
		repo:     repo,
		gate:     NewAuthorizationGate(),
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithAuthorizationGate overrides the capability check.
func (h *EditProfileHandler) WithAuthorizationGate(gate AuthorizationGate) *EditProfileHandler {
	if gate != nil {
		h.gate = gate
	}
	return h
}

// WithActivitySink sets the sink used to emit the profile change event.
func (h *EditProfileHandler) WithActivitySink(sink ActivitySink) *EditProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *EditProfileHandler) WithLogger(logger Logger) *EditProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *EditProfileHandler) WithClock(clock func() time.Time) *EditProfileHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *EditProfileHandler) Execute(ctx context.Context, event EditProfileMessage) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile edit",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *EditProfileHandler) execute(ctx context.Context, event EditProfileMessage) (*Profile, error) {
	if err := h.gate.Allow(event.Actor, OpEditProfile, event.Username); err != nil {
		return nil, err
	}

	if event.Privacy != nil {
		if err := validation.Validate(*event.Privacy, validation.In(PrivacyOpen, PrivacyClosed)); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid privacy policy").
				WithCode(goerrors.CodeBadRequest)
		}
	}

	phone, err := h.normalizePhone(event.Phone, event.PhoneRegion)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var profile *Profile
	changed := []string{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByUsernameTx(ctx, tx, event.Username)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("account not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"username": event.Username})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
		}

		profile, err = h.repo.Profiles().GetByUserIDTx(ctx, tx, user.ID)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("profile not found", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"username": event.Username})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve profile")
		}

		changed = applyProfileChanges(profile, event, phone)
		if len(changed) == 0 {
			return nil
		}

		if profile, err = h.repo.Profiles().UpdateTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update profile")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile edit failed")
	}

	h.recordActivity(ctx, event.Actor, profile, changed)

	return profile, nil
}

// normalizePhone parses the supplied number into E.164. An empty value
// clears the field and skips parsing.
func (h *EditProfileHandler) normalizePhone(phone *string, region string) (*string, error) {
	if phone == nil || *phone == "" {
		return phone, nil
	}

	if region == "" {
		region = "US"
	}

	parsed, err := phonenumbers.Parse(*phone, region)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return nil, goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": *phone})
	}

	formatted := phonenumbers.Format(parsed, phonenumbers.E164)
	return &formatted, nil
}

func applyProfileChanges(profile *Profile, event EditProfileMessage, phone *string) []string {
	changed := []string{}

	apply := func(field string, target *string, value *string) {
		if value == nil || *target == *value {
			return
		}
		*target = *value
		changed = append(changed, field)
	}

	apply("first_name", &profile.FirstName, event.FirstName)
	apply("last_name", &profile.LastName, event.LastName)
	apply("picture", &profile.Picture, event.Picture)
	apply("about", &profile.About, event.About)
	apply("phone", &profile.Phone, phone)
	apply("privacy", &profile.Privacy, event.Privacy)

	return changed
}

// recordActivity always fires, even for a no-op edit, so downstream
// listeners observe every accepted edit request.
func (h *EditProfileHandler) recordActivity(ctx context.Context, actor Identity, profile *Profile, changed []string) {
	if profile == nil || profile.UserID == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventProfileChanged,
		Actor:     actorRef(actor),
		UserID:    profile.UserID.String(),
		Metadata: map[string]any{
			"fields": changed,
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during profile edit: %v", err)
	}
}
