package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 14 // OWASP 2026 recommendation - stronger than cost 12 (Feb 2026)
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return "", fmt.Errorf("password length out of range")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// CredentialSource resolves a user's stored password hash. The marketplace
// owns the user table; this module only needs the hash for re-proof.
type CredentialSource interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// PasswordReauthVerifier checks a password against the stored bcrypt hash
// before security-lowering operations like disabling MFA.
type PasswordReauthVerifier struct {
	source CredentialSource
}

// NewPasswordReauthVerifier creates a verifier backed by source.
func NewPasswordReauthVerifier(source CredentialSource) *PasswordReauthVerifier {
	return &PasswordReauthVerifier{source: source}
}

// VerifyReauth returns true when proof matches the user's stored credential.
// A mismatch is a normal false, not an error.
func (v *PasswordReauthVerifier) VerifyReauth(ctx context.Context, userID, proof string) (bool, error) {
	hash, err := v.source.PasswordHash(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load credential: %w", err)
	}

	if err := ComparePassword(hash, proof); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
