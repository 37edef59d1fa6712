package tokenpool

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const saltSize = 16

// identity derives the one-way identity hash for a token. The hash is keyed
// with the pool salt so identities are stable across restarts (the salt is
// persisted) but useless for recovering or correlating tokens elsewhere.
func identity(salt []byte, token string) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating pool salt: %w", err)
	}
	return salt, nil
}

func encodeSalt(salt []byte) string {
	return hex.EncodeToString(salt)
}

func decodeSalt(s string) ([]byte, error) {
	salt, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding pool salt: %w", err)
	}
	return salt, nil
}

// Mask returns a display-safe form of a token: enough of the edges to
// recognize it in a dashboard, never enough to use it.
func Mask(token string) string {
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "…" + token[len(token)-4:]
}

// ParseTokenList splits a raw newline- or comma-separated token list,
// trimming whitespace and dropping empty entries.
func ParseTokenList(raw string) []string {
	if raw == "" {
		return nil
	}

	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if token := strings.TrimSpace(f); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
