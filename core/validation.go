package core

import (
	"net/mail"
	"strings"
)

// FieldErrors maps a request field to its validation messages, mirroring
// the error body returned to clients on 400 responses.
type FieldErrors map[string][]string

func (fe FieldErrors) add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// HasErrors reports whether any field failed validation.
func (fe FieldErrors) HasErrors() bool { return len(fe) > 0 }

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	passwordMinLen = 8
)

// RegisterInput is the registration payload after JSON binding.
type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// ValidateRegister runs every check and returns the full field error map;
// callers must persist nothing when it is non-empty.
func ValidateRegister(in RegisterInput) FieldErrors {
	errs := FieldErrors{}

	validateUsername(errs, in.Username)
	validateEmail(errs, in.Email)

	if in.Password == "" {
		errs.add("password", "This field is required.")
	} else if len(in.Password) < passwordMinLen {
		errs.add("password", "Password must be at least 8 characters.")
	}
	if in.Password2 != in.Password {
		errs.add("password2", "Password fields didn't match.")
	}

	return errs
}

// AdminUpdateInput is the partial-update payload; absent fields stay nil.
type AdminUpdateInput struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// ValidateAdminUpdate applies the registration field rules to whichever
// fields the patch supplies.
func ValidateAdminUpdate(in AdminUpdateInput) FieldErrors {
	errs := FieldErrors{}
	if in.Username != nil {
		validateUsername(errs, *in.Username)
	}
	if in.Email != nil {
		validateEmail(errs, *in.Email)
	}
	return errs
}

// Patch converts validated input into a repository patch, normalizing the
// same way registration does.
func (in AdminUpdateInput) Patch() UserPatch {
	p := UserPatch{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		IsActive:    in.IsActive,
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
	}
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		p.Username = &v
	}
	if in.Email != nil {
		v := NormalizeEmail(*in.Email)
		p.Email = &v
	}
	return p
}

func validateUsername(errs FieldErrors, username string) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		errs.add("username", "This field is required.")
	case len(username) < usernameMinLen:
		errs.add("username", "Username must be at least 3 characters.")
	case len(username) > usernameMaxLen:
		errs.add("username", "Username must be at most 30 characters.")
	case !validUsernameChars(username):
		errs.add("username", "Username may contain only letters, digits, and _.- characters.")
	}
}

func validateEmail(errs FieldErrors, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		errs.add("email", "This field is required.")
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs.add("email", "Enter a valid email address.")
	}
}

func validUsernameChars(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeEmail lowercases and trims an email for storage and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
