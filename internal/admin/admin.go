// Package admin guards the activity log console.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotConfigured is returned when no admin credentials are set.
var ErrNotConfigured = errors.New("admin access is not configured")

// Credentials hold the admin user name and the bcrypt hash of its password.
type Credentials struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password-hash"`
}

// Enabled reports whether both fields are set.
func (c Credentials) Enabled() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.PasswordHash) != ""
}

// Verify reports whether username and password match. The password hash is
// always compared to keep timing independent of the user name.
func (c Credentials) Verify(username, password string) (bool, error) {
	if !c.Enabled() {
		return false, ErrNotConfigured
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(strings.TrimSpace(c.Username))) == 1

	err := bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(c.PasswordHash)), []byte(password))
	switch {
	case err == nil:
		return userOK, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("check admin password: %w", err)
	}
}

// HashPassword returns the bcrypt hash to put into the configuration.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
