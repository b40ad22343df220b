package core

import (
	"context"
	"errors"
	"time"
)

// User represents an authenticated principal returned to handlers.
type User struct {
	ID          int64
	Username    string
	Email       string
	FirstName   string
	LastName    string
	IsActive    bool
	IsStaff     bool
	IsSuperuser bool
	CreatedAt   time.Time
}

// IsAdmin reports whether the user may perform user-management operations.
// Staff and superusers are both admins; this is the only predicate the
// authorization middleware consults.
func (u User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong or
	// the account may not log in. Callers must not surface which case it was.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(ctx context.Context, username, password string) (User, error)
}
