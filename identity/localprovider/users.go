package localprovider

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// User is a directory entry of the local provider.
type User struct {
	ID                     string            `json:"id,omitempty"`
	Email                  string            `json:"email,omitempty"`
	Name                   string            `json:"name,omitempty"`
	PasswordHash           string            `json:"-"` // never serialize
	Confirmed              bool              `json:"confirmed,omitempty"`
	PasswordChangeRequired bool              `json:"password_change_required,omitempty"` // forces a NEW_PASSWORD_REQUIRED challenge on sign in
	Attributes             map[string]string `json:"attributes,omitempty"`
	DateJoined             time.Time         `json:"date_joined,omitempty"`

	confirmation *pendingCode
	reset        *pendingCode
}

type pendingCode struct {
	code      string
	expiresAt time.Time
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// unknownUserHash is compared against when no user matches, so a miss costs as much as
// a wrong password.
var unknownUserHash = sync.OnceValue(func() string {
	hash, err := HashPassword("unknown-user-placeholder")
	if err != nil {
		panic(err)
	}
	return hash
})

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail hides most of the local part: jane@example.com -> j***@example.com
func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func copyAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
