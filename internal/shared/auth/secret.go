package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrSecretMismatch = errors.New("secret does not match")

// HashSecret hashes a shared secret (e.g. the webhook secret) with bcrypt.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SecretVerifier checks presented secrets against a stored bcrypt hash.
// A verifier with an empty hash accepts everything.
type SecretVerifier struct {
	hash []byte
}

func NewSecretVerifier(hash string) *SecretVerifier {
	return &SecretVerifier{hash: []byte(hash)}
}

// Enabled reports whether a hash is configured.
func (v *SecretVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

func (v *SecretVerifier) Verify(secret string) error {
	if !v.Enabled() {
		return nil
	}
	if secret == "" {
		return ErrSecretMismatch
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(secret)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}
