package middleware

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "lora_"

// GeneratedKey is a freshly minted API key. Raw is shown to the caller once.
type GeneratedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateKey creates a random API key and its bcrypt hash.
func GenerateKey() (GeneratedKey, error) {
	raw := keyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("hash api key: %w", err)
	}
	return GeneratedKey{Raw: raw, Prefix: raw[:KeyPrefixLen], Hash: string(hash)}, nil
}

// ValidScope reports whether s is a scope keys can be granted.
func ValidScope(s string) bool {
	switch s {
	case ScopeTrain, ScopeWorker, ScopeAdmin:
		return true
	}
	return false
}
