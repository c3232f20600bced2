package localprovider

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const (
	tokenLength = 32 // 32 bytes = 256 bits
	codeDigits  = 6
)

// issuedToken binds an opaque provider token to its owner.
type issuedToken struct {
	userID    string
	expiresAt time.Time
}

func (t issuedToken) expired(now time.Time) bool {
	return !now.Before(t.expiresAt)
}

func randomToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
