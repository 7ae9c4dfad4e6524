package repositories

import (
	"context"
	"fmt"

	"github.com/stallmarket/bastion/internal/database"
	pkgauth "github.com/stallmarket/bastion/pkg/auth"
)

// credentialSourceImpl reads the marketplace's user credential hash for
// re-authentication proofs. This module never writes the users table.
type credentialSourceImpl struct {
	db *database.DB
}

// NewCredentialSource creates a read-only credential source over the
// marketplace users table.
func NewCredentialSource(db *database.DB) pkgauth.CredentialSource {
	return &credentialSourceImpl{db: db}
}

// PasswordHash returns the stored bcrypt hash for a user.
func (r *credentialSourceImpl) PasswordHash(ctx context.Context, userID string) (string, error) {
	query := `SELECT password_hash FROM users WHERE id = $1`

	var hash string
	if err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&hash); err != nil {
		return "", fmt.Errorf("failed to load credential hash: %w", database.MapPostgresError(err))
	}
	return hash, nil
}
