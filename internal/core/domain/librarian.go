package domain

import (
	"strings"
	"time"
)

type Librarian struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
}

// HasBcryptHash reports whether the stored secret is a bcrypt hash rather
// than a legacy plain-text password.
func (l Librarian) HasBcryptHash() bool {
	return strings.HasPrefix(l.PasswordHash, "$2")
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is what a logged-in librarian carries between requests.
type Session struct {
	Token     string
	Librarian int64
	Email     string
	Name      string
	ExpiresAt time.Time
}
