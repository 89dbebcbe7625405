package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func gateFixture(t *testing.T) (*Gate, *memStore, *Issuer) {
	t.Helper()
	issuer, err := NewIssuer(testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	store := newMemStore()
	return NewGate(issuer, store.Accounts()), store, issuer
}

func TestGateAcceptsActiveTenant(t *testing.T) {
	gate, store, issuer := gateFixture(t)
	acct := seedTenant(t, store, "lord@example.com", "swordfish1", true)

	token, _, err := issuer.IssueAccessToken(acct.ID, acct.Email, VariantTenant)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	id, err := gate.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.AccountID != acct.ID || id.Variant != VariantTenant {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestGateRevokesSuspendedTenantBeforeExpiry(t *testing.T) {
	gate, store, issuer := gateFixture(t)
	acct := seedTenant(t, store, "lord@example.com", "swordfish1", true)

	token, _, err := issuer.IssueAccessToken(acct.ID, acct.Email, VariantTenant)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	store.mu.Lock()
	store.byID[string(VariantTenant)+"/"+acct.ID].Active = false
	store.mu.Unlock()

	if _, err := gate.Authenticate(context.Background(), token); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestGateRejectsDeletedTenant(t *testing.T) {
	gate, _, issuer := gateFixture(t)

	// Token names an account that no longer exists in the store.
	token, _, err := issuer.IssueAccessToken("acct-gone", "gone@example.com", VariantTenant)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := gate.Authenticate(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGateTrustsOperatorClaims(t *testing.T) {
	gate, _, issuer := gateFixture(t)

	// No operator row exists; the claims alone carry the identity.
	token, _, err := issuer.IssueAccessToken("op-1", "staff@example.com", VariantOperator)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	id, err := gate.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.AccountID != "op-1" || id.Variant != VariantOperator {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestGateRejectsBadTokens(t *testing.T) {
	gate, _, _ := gateFixture(t)

	if _, err := gate.Authenticate(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token: got %v", err)
	}
	if _, err := gate.Authenticate(context.Background(), "junk.junk.junk"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token: got %v", err)
	}
}

func TestRequireVariant(t *testing.T) {
	id := Identity{AccountID: "acct-1", Email: "lord@example.com", Variant: VariantTenant}
	ctx := ContextWithIdentity(context.Background(), id)

	got, err := RequireVariant(ctx, VariantTenant)
	if err != nil {
		t.Fatalf("RequireVariant: %v", err)
	}
	if got != id {
		t.Fatalf("unexpected identity: %+v", got)
	}

	if _, err := RequireVariant(ctx, VariantOperator); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("wrong variant: got %v", err)
	}
	if _, err := RequireVariant(context.Background(), VariantTenant); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("no identity: got %v", err)
	}
}
