package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prosite.org/internal/ids"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// Service orchestrates the session lifecycle: login, refresh with rotation,
// logout. It holds no per-session state; everything lives in the Store.
type Service struct {
	store      Store
	issuer     *Issuer
	hasher     Hasher
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the session service.
func NewService(store Store, issuer *Issuer, hasher Hasher, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		issuer:     issuer,
		hasher:     hasher,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail is the case normalization applied before every email lookup
// and insert; the store only ever sees normalized values.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates (email, password) within a partition and opens a
// session. Unknown email and wrong password both fail with
// ErrInvalidCredentials; the two cases must stay indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string, variant Variant) (TokenPair, *Account, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" || !variant.Valid() {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	account, err := s.store.Accounts().FindByEmail(ctx, email, variant)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, fmt.Errorf("find account: %w", err)
	}
	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	// The caller proved identity, so suspension gets its own kind.
	if variant == VariantTenant && !account.Active {
		return TokenPair{}, nil, ErrAccountInactive
	}

	now := s.now().UTC()
	if err := s.store.Accounts().TouchLastLogin(ctx, account.ID, variant, now); err != nil {
		return TokenPair{}, nil, fmt.Errorf("touch last login: %w", err)
	}
	account.LastLoginAt = &now

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, account, nil
}

// Refresh exchanges a refresh token for a fresh access/refresh pair. The
// consumed row is deleted before the replacement is issued: that is the
// rotation contract. Concurrent duplicates race on the delete and at most one
// wins; the loser fails closed with ErrTokenInvalid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *Account, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrTokenInvalid
	}

	record, err := s.store.RefreshTokens().FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrTokenInvalid
		}
		return TokenPair{}, nil, fmt.Errorf("find refresh token: %w", err)
	}
	// Expired and absent collapse to one kind: the caller re-authenticates
	// either way.
	if s.now().After(record.ExpiresAt) {
		_ = s.store.RefreshTokens().DeleteByToken(ctx, refreshToken)
		return TokenPair{}, nil, ErrTokenInvalid
	}

	account, err := s.store.Accounts().FindByID(ctx, record.OwnerID, record.OwnerVariant)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrTokenInvalid
		}
		return TokenPair{}, nil, fmt.Errorf("find account: %w", err)
	}
	if record.OwnerVariant == VariantTenant && !account.Active {
		return TokenPair{}, nil, ErrAccountInactive
	}

	won, err := s.store.RefreshTokens().ConsumeByToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if !won {
		return TokenPair{}, nil, ErrTokenInvalid
	}

	pair, err := s.openSession(ctx, account)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, account, nil
}

// Logout revokes the session by deleting its refresh token row. It is
// idempotent: an absent token is still a successful logout.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.store.RefreshTokens().DeleteByToken(ctx, refreshToken)
}

func (s *Service) openSession(ctx context.Context, account *Account) (TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(account.ID, account.Email, account.Variant)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := GenerateOpaqueToken(RefreshTokenBytes)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now().UTC()
	record := &RefreshToken{
		ID:           ids.New(),
		Token:        refresh,
		OwnerID:      account.ID,
		OwnerVariant: account.Variant,
		ExpiresAt:    now.Add(s.refreshTTL),
		IssuedAt:     now,
	}
	if err := s.store.RefreshTokens().Create(ctx, record); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}
