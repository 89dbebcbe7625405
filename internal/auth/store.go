package auth

import (
	"context"
	"time"
)

// Store describes the persistence the auth subsystem depends on. Concurrent
// refresh and reset attempts race at this boundary, so the mutating calls
// that decide those races (ConsumeRefreshToken, ConsumeResetToken) must be
// atomically conditioned on current row state, never read-then-write.
type Store interface {
	Accounts() AccountStore
	RefreshTokens() RefreshTokenStore
	ResetTokens() ResetTokenStore
}

// AccountStore reads and updates user records in both partitions.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string, variant Variant) (*Account, error)
	FindByID(ctx context.Context, id string, variant Variant) (*Account, error)
	// TouchLastLogin stamps a successful login.
	TouchLastLogin(ctx context.Context, id string, variant Variant, at time.Time) error
	// UpdatePasswordByEmail rewrites the stored hash for the (email, variant) key.
	UpdatePasswordByEmail(ctx context.Context, email string, variant Variant, passwordHash string) error
}

// RefreshTokenStore manages refresh token rows keyed by unique token value.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	// ConsumeByToken deletes the row and reports whether this caller won the
	// delete. Duplicate submissions of one token race here; exactly one
	// caller sees true.
	ConsumeByToken(ctx context.Context, token string) (bool, error)
	// DeleteByToken removes the row if present. Absence is not an error;
	// logout is idempotent.
	DeleteByToken(ctx context.Context, token string) error
}

// ResetTokenStore manages password reset token rows.
type ResetTokenStore interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	FindByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// Consume marks the row used, conditioned on used=false, and reports
	// whether this caller performed the flip. At most one redemption ever
	// succeeds per token value.
	Consume(ctx context.Context, token string) (bool, error)
}
