package identity

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// User maps to the users table.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    *string    `db:"first_name" json:"first_name,omitempty"`
	LastName     *string    `db:"last_name" json:"last_name,omitempty"`
	PhoneNumber  *string    `db:"phone_number" json:"phone_number,omitempty"`
	Role         string     `db:"role" json:"role"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsVerified   bool       `db:"is_verified" json:"is_verified"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns "first last", falling back to the username.
func (u *User) FullName() string {
	if u.FirstName != nil && u.LastName != nil {
		return *u.FirstName + " " + *u.LastName
	}
	return u.Username
}

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitRe    = regexp.MustCompile(`[0-9]`)
	letterRe   = regexp.MustCompile(`[a-zA-Z]`)
)

// ValidUsername reports whether the username is 3-50 word characters.
func ValidUsername(username string) bool { return usernameRe.MatchString(username) }

// ValidEmail reports whether the address has a plausible mailbox shape.
func ValidEmail(email string) bool { return len(email) <= 255 && emailRe.MatchString(email) }

// ValidPassword requires at least 8 characters with a letter and a digit.
func ValidPassword(password string) bool {
	return len(password) >= 8 && letterRe.MatchString(password) && digitRe.MatchString(password)
}
