package auth

import (
	"context"
	"errors"
	"fmt"
)

// Gate is the request-time guard. It verifies the bearer token and, for
// tenants, re-checks the account against the store so a deletion or
// suspension after issuance takes effect before natural token expiry.
// Operator claims are trusted without a re-fetch.
type Gate struct {
	issuer   *Issuer
	accounts AccountStore
}

// NewGate constructs the gate.
func NewGate(issuer *Issuer, accounts AccountStore) *Gate {
	return &Gate{issuer: issuer, accounts: accounts}
}

// Authenticate turns a bearer token into a verified Identity or rejects the
// call before it reaches business logic.
func (g *Gate) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := g.issuer.VerifyAccessToken(token)
	if err != nil {
		return Identity{}, err
	}

	if claims.Variant == VariantTenant {
		account, err := g.accounts.FindByID(ctx, claims.Subject, VariantTenant)
		if err != nil {
			// Account deleted since issuance: the token no longer names
			// anyone.
			if errors.Is(err, ErrNotFound) {
				return Identity{}, ErrTokenInvalid
			}
			return Identity{}, fmt.Errorf("recheck account: %w", err)
		}
		if !account.Active {
			return Identity{}, ErrAccountInactive
		}
	}

	return Identity{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Variant:   claims.Variant,
	}, nil
}
