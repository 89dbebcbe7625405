package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "prosite"

// Opaque token sizes in random bytes before encoding. Refresh tokens are
// longer than reset tokens: they live longer and unlock more.
const (
	RefreshTokenBytes = 64
	ResetTokenBytes   = 32
)

// Claims is the self-contained payload of an access token. It is verified,
// never looked up, so account state can drift from it until expiry.
type Claims struct {
	Email   string  `json:"email"`
	Variant Variant `json:"variant"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access tokens and generates opaque token values.
// It is stateless given its secret; safe for concurrent use.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer validates the signing secret once at construction; a bad secret
// is a deployment fault, not a per-call condition.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, errors.New("auth: signing secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: access token ttl must be positive")
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source. Test use only.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	if now != nil {
		i.now = now
	}
	return i
}

// TTL reports the configured access token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// IssueAccessToken signs claims for the given account identity with the fixed
// short TTL.
func (i *Issuer) IssueAccessToken(ownerID, email string, variant Variant) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		Email:   email,
		Variant: variant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature and expiry. Expired tokens fail with
// ErrTokenExpired; everything else malformed fails with ErrTokenInvalid. The
// kinds are distinct so callers can surface "log in again" vs "retry"
// differently later, even though both map to 401 today.
func (i *Issuer) VerifyAccessToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" || !claims.Variant.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// GenerateOpaqueToken returns byteLength random bytes of cryptographically
// secure entropy, URL-safe encoded.
func GenerateOpaqueToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", errors.New("auth: token length must be positive")
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
