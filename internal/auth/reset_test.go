package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func resetFixture(t *testing.T, mailer Mailer, opts ...ResetOption) (*ResetFlow, *memStore) {
	t.Helper()
	store := newMemStore()
	flow := NewResetFlow(store, NewHasher(bcrypt.MinCost), mailer, opts...)
	return flow, store
}

func TestForgotPasswordIssuesToken(t *testing.T) {
	var gotEmail, gotToken string
	mailer := MailerFunc(func(_ context.Context, email, token string) error {
		gotEmail, gotToken = email, token
		return nil
	})
	flow, store := resetFixture(t, mailer)
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	if err := flow.ForgotPassword(context.Background(), " Lord@Example.com ", VariantTenant); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if gotEmail != "lord@example.com" {
		t.Fatalf("mailer got email %q", gotEmail)
	}
	rec, ok := store.resets[gotToken]
	if !ok {
		t.Fatal("mailed token was not persisted")
	}
	if rec.Used {
		t.Fatal("fresh token marked used")
	}
	if rec.OwnerVariant != VariantTenant {
		t.Fatalf("token bound to wrong partition: %s", rec.OwnerVariant)
	}
}

func TestForgotPasswordSilentOnUnknownEmail(t *testing.T) {
	called := false
	mailer := MailerFunc(func(context.Context, string, string) error {
		called = true
		return nil
	})
	flow, store := resetFixture(t, mailer)

	if err := flow.ForgotPassword(context.Background(), "nobody@example.com", VariantTenant); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if called {
		t.Fatal("mailer invoked for unknown email")
	}
	if len(store.resets) != 0 {
		t.Fatal("token created for unknown email")
	}
}

func TestForgotPasswordMailerOutageStaysSilent(t *testing.T) {
	mailer := MailerFunc(func(context.Context, string, string) error {
		return errors.New("smtp unreachable")
	})
	flow, store := resetFixture(t, mailer)
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	// A failing transport must look exactly like an unknown email: nil both
	// ways, or the error becomes an account-existence oracle.
	if err := flow.ForgotPassword(context.Background(), "lord@example.com", VariantTenant); err != nil {
		t.Fatalf("mailer outage surfaced to caller: %v", err)
	}
	if err := flow.ForgotPassword(context.Background(), "nobody@example.com", VariantTenant); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	// The token was still persisted; only delivery was lost.
	if len(store.resets) != 1 {
		t.Fatalf("expected one persisted token, got %d", len(store.resets))
	}
}

func TestResetPasswordChangesHash(t *testing.T) {
	var token string
	mailer := MailerFunc(func(_ context.Context, _, tok string) error {
		token = tok
		return nil
	})
	flow, store := resetFixture(t, mailer)
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	if err := flow.ForgotPassword(context.Background(), "lord@example.com", VariantTenant); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := flow.ResetPassword(context.Background(), token, "new-password-1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	store.mu.Lock()
	hash := store.accounts[string(VariantTenant)+"/lord@example.com"].PasswordHash
	store.mu.Unlock()
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("new-password-1")); err != nil {
		t.Fatalf("new password not installed: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("swordfish1")); err == nil {
		t.Fatal("old password still verifies")
	}
}

func TestResetPasswordSingleUse(t *testing.T) {
	var token string
	mailer := MailerFunc(func(_ context.Context, _, tok string) error {
		token = tok
		return nil
	})
	flow, store := resetFixture(t, mailer)
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	if err := flow.ForgotPassword(context.Background(), "lord@example.com", VariantTenant); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := flow.ResetPassword(context.Background(), token, "new-password-1"); err != nil {
		t.Fatalf("first ResetPassword: %v", err)
	}
	if err := flow.ResetPassword(context.Background(), token, "another-pass-2"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("replay: expected ErrTokenInvalid, got %v", err)
	}

	store.mu.Lock()
	hash := store.accounts[string(VariantTenant)+"/lord@example.com"].PasswordHash
	store.mu.Unlock()
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("new-password-1")); err != nil {
		t.Fatalf("replay overwrote the first reset: %v", err)
	}
}

func TestResetPasswordRejections(t *testing.T) {
	now := time.Now().UTC()
	var token string
	mailer := MailerFunc(func(_ context.Context, _, tok string) error {
		token = tok
		return nil
	})
	flow, store := resetFixture(t, mailer,
		WithResetTTL(30*time.Minute), WithResetClock(func() time.Time { return now }))
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	if err := flow.ResetPassword(context.Background(), "never-issued", "new-password-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("unknown token: got %v", err)
	}
	if err := flow.ResetPassword(context.Background(), "", "new-password-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token: got %v", err)
	}

	if err := flow.ForgotPassword(context.Background(), "lord@example.com", VariantTenant); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if err := flow.ResetPassword(context.Background(), token, "short"); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("weak password: got %v", err)
	}

	now = now.Add(time.Hour)
	if err := flow.ResetPassword(context.Background(), token, "new-password-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired token: got %v", err)
	}
}

func TestResetPasswordConcurrentExactlyOnce(t *testing.T) {
	var token string
	mailer := MailerFunc(func(_ context.Context, _, tok string) error {
		token = tok
		return nil
	})
	flow, store := resetFixture(t, mailer)
	seedTenant(t, store, "lord@example.com", "swordfish1", true)

	if err := flow.ForgotPassword(context.Background(), "lord@example.com", VariantTenant); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = flow.ResetPassword(context.Background(), token, "new-password-1")
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenInvalid):
		default:
			t.Fatalf("caller %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful redemption, got %d", wins)
	}
}
