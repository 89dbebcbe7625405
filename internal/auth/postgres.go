package auth

import (
	"context"
	"database/sql"
	"time"

	"prosite.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Tenant and operator accounts
// live in separate tables so email uniqueness is enforced per partition.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Accounts() AccountStore           { return &accountStore{db: s.db} }
func (s *PGStore) RefreshTokens() RefreshTokenStore { return &refreshTokenStore{db: s.db} }
func (s *PGStore) ResetTokens() ResetTokenStore     { return &resetTokenStore{db: s.db} }

// Account store ------------------------------------------------------------
type accountStore struct{ db *sql.DB }

func tableFor(variant Variant) string {
	if variant == VariantOperator {
		return "admin_users"
	}
	return "clients"
}

func (s *accountStore) FindByEmail(ctx context.Context, email string, variant Variant) (*Account, error) {
	return s.find(ctx, variant, "email", email)
}

func (s *accountStore) FindByID(ctx context.Context, id string, variant Variant) (*Account, error) {
	return s.find(ctx, variant, "id", id)
}

func (s *accountStore) find(ctx context.Context, variant Variant, column, value string) (*Account, error) {
	account := Account{Variant: variant}
	var err error
	switch variant {
	case VariantOperator:
		// Operators carry a role and no suspension flag.
		row := s.db.QueryRowContext(ctx,
			`select id, email, password_hash, role, created_at, last_login_at
			 from admin_users where `+column+`=$1`, value)
		account.Active = true
		err = row.Scan(&account.ID, &account.Email, &account.PasswordHash,
			&account.Role, &account.CreatedAt, &account.LastLoginAt)
	default:
		row := s.db.QueryRowContext(ctx,
			`select id, email, password_hash, active, created_at, last_login_at
			 from clients where `+column+`=$1`, value)
		err = row.Scan(&account.ID, &account.Email, &account.PasswordHash,
			&account.Active, &account.CreatedAt, &account.LastLoginAt)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *accountStore) TouchLastLogin(ctx context.Context, id string, variant Variant, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update `+tableFor(variant)+` set last_login_at=$1 where id=$2`, at, id)
	return err
}

func (s *accountStore) UpdatePasswordByEmail(ctx context.Context, email string, variant Variant, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update `+tableFor(variant)+` set password_hash=$1 where email=$2`, passwordHash, email)
	return err
}

// Refresh token store ------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, token, owner_id, owner_variant, expires_at, issued_at)
		 values($1,$2,$3,$4,$5,$6)`,
		token.ID, token.Token, token.OwnerID, string(token.OwnerVariant),
		token.ExpiresAt, token.IssuedAt,
	)
	return err
}

func (s *refreshTokenStore) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, token, owner_id, owner_variant, expires_at, issued_at
		 from refresh_tokens where token=$1`, token)
	var rt RefreshToken
	var variant string
	if err := row.Scan(&rt.ID, &rt.Token, &rt.OwnerID, &variant, &rt.ExpiresAt, &rt.IssuedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rt.OwnerVariant = Variant(variant)
	return &rt, nil
}

// ConsumeByToken decides the rotation race: the row delete is atomic in
// Postgres, so of N concurrent callers exactly one observes an affected row.
func (s *refreshTokenStore) ConsumeByToken(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_tokens where token=$1`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *refreshTokenStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where token=$1`, token)
	return err
}

// Reset token store --------------------------------------------------------
type resetTokenStore struct{ db *sql.DB }

func (s *resetTokenStore) Create(ctx context.Context, token *PasswordResetToken) error {
	if token.ID == "" {
		token.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into password_reset_tokens(id, token, email, owner_variant, expires_at, used, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		token.ID, token.Token, token.Email, string(token.OwnerVariant),
		token.ExpiresAt, token.Used, token.CreatedAt,
	)
	return err
}

func (s *resetTokenStore) FindByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, token, email, owner_variant, expires_at, used, created_at
		 from password_reset_tokens where token=$1`, token)
	var rt PasswordResetToken
	var variant string
	if err := row.Scan(&rt.ID, &rt.Token, &rt.Email, &variant, &rt.ExpiresAt, &rt.Used, &rt.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rt.OwnerVariant = Variant(variant)
	return &rt, nil
}

// Consume flips used=false to true. The condition rides in the statement, not
// in application code, so concurrent redemptions cannot both win.
func (s *resetTokenStore) Consume(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update password_reset_tokens set used=true where token=$1 and used=false`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
