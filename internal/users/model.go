package users

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies what an account may do in the registry. The set of
// accepted roles is validated at the identity layer; these constants are
// the defaults.
type Role string

const (
	RoleStudent     Role = "student"
	RoleInstitution Role = "institution"
	RoleVerifier    Role = "verifier"
	RoleAdmin       Role = "admin"
)

// User is a directory entry for an account known to the registry.
// Authentication happens upstream; this record exists so issuance can
// resolve a student email to a subject ID and so audit rows can name
// their actors.
type User struct {
	ID            uuid.UUID `json:"id"             db:"id"`
	Email         string    `json:"email"          db:"email"`
	DisplayName   string    `json:"display_name"   db:"display_name"`
	Role          Role      `json:"role"           db:"role"`
	Institution   string    `json:"institution"    db:"institution"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}
