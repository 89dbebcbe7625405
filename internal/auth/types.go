package auth

import "time"

// Variant partitions accounts. Tenants are paying clients whose castles the
// service manages; operators staff the admin surface. Email uniqueness is
// enforced per variant, not globally.
type Variant string

const (
	VariantTenant   Variant = "client"
	VariantOperator Variant = "admin"
)

// Valid reports whether v is one of the two known partitions.
func (v Variant) Valid() bool {
	return v == VariantTenant || v == VariantOperator
}

// Role grades operator accounts. Tenant accounts carry no role.
type Role string

const (
	RoleStandard Role = "standard"
	RoleElevated Role = "elevated"
)

// Account is a user record from either partition.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Variant      Variant
	// Role is set for operators only.
	Role Role
	// Active applies to tenants; suspension flips it off. Operators are
	// always treated as active.
	Active      bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// RefreshToken is a persisted long-lived opaque credential. Exactly one valid
// row exists per session; a refresh deletes the row and inserts a successor.
type RefreshToken struct {
	ID           string
	Token        string
	OwnerID      string
	OwnerVariant Variant
	ExpiresAt    time.Time
	IssuedAt     time.Time
}

// PasswordResetToken authorizes a single password change within its window.
type PasswordResetToken struct {
	ID           string
	Token        string
	Email        string
	OwnerVariant Variant
	ExpiresAt    time.Time
	Used         bool
	CreatedAt    time.Time
}

// TokenPair is what a successful login or refresh hands back to the caller.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Identity is the verified caller attached to a request context by the gate.
type Identity struct {
	AccountID string
	Email     string
	Variant   Variant
}
