package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prosite.org/internal/ids"
	"prosite.org/internal/obs"
)

const defaultResetTTL = 30 * time.Minute

// Mailer delivers reset tokens out of band. Email transport is an external
// collaborator; the flow only hands it the token.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, email, token string) error

func (f MailerFunc) SendPasswordReset(ctx context.Context, email, token string) error {
	return f(ctx, email, token)
}

// ResetFlow orchestrates forgot/reset password.
type ResetFlow struct {
	store    Store
	hasher   Hasher
	mailer   Mailer
	resetTTL time.Duration
	now      func() time.Time
}

// ResetOption configures ResetFlow.
type ResetOption func(*ResetFlow)

// WithResetTTL overrides the reset token lifetime.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(r *ResetFlow) {
		if ttl > 0 {
			r.resetTTL = ttl
		}
	}
}

// WithResetClock overrides the time source (useful for tests).
func WithResetClock(fn func() time.Time) ResetOption {
	return func(r *ResetFlow) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResetFlow constructs the reset flow.
func NewResetFlow(store Store, hasher Hasher, mailer Mailer, opts ...ResetOption) *ResetFlow {
	r := &ResetFlow{
		store:    store,
		hasher:   hasher,
		mailer:   mailer,
		resetTTL: defaultResetTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForgotPassword creates and dispatches a reset token for the account, if one
// exists. A miss returns nil with no signal at all: the response must be
// identical whether or not the email is registered.
func (r *ResetFlow) ForgotPassword(ctx context.Context, email string, variant Variant) error {
	email = NormalizeEmail(email)
	if email == "" || !variant.Valid() {
		return nil
	}

	if _, err := r.store.Accounts().FindByEmail(ctx, email, variant); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find account: %w", err)
	}

	token, err := GenerateOpaqueToken(ResetTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	now := r.now().UTC()
	record := &PasswordResetToken{
		ID:           ids.New(),
		Token:        token,
		Email:        email,
		OwnerVariant: variant,
		ExpiresAt:    now.Add(r.resetTTL),
		Used:         false,
		CreatedAt:    now,
	}
	if err := r.store.ResetTokens().Create(ctx, record); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if r.mailer != nil {
		// A mail transport outage must not change the response either:
		// erroring here would tell the caller the email is registered.
		if err := r.mailer.SendPasswordReset(ctx, email, token); err != nil {
			obs.Error("password reset mail failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
	return nil
}

// ResetPassword redeems a reset token and installs the new password. Absent,
// expired and already-used tokens all fail with ErrTokenInvalid; which of the
// three applied is deliberately not revealed. The used-flag flip is the
// exactly-once point: under concurrent redemption only the caller whose
// conditional Consume wins gets to change the password.
func (r *ResetFlow) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrTokenInvalid
	}
	if len(newPassword) < 8 {
		return ErrValidationFailed
	}

	record, err := r.store.ResetTokens().FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("find reset token: %w", err)
	}
	if record.Used || r.now().After(record.ExpiresAt) {
		return ErrTokenInvalid
	}

	won, err := r.store.ResetTokens().Consume(ctx, token)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !won {
		return ErrTokenInvalid
	}

	hash, err := r.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := r.store.Accounts().UpdatePasswordByEmail(ctx, record.Email, record.OwnerVariant, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
