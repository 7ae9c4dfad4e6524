package repositories

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/database"
)

// roleDirectoryImpl is the database-backed role/permission directory. This
// core only reads the table; role assignment is an external write path.
type roleDirectoryImpl struct {
	db *database.DB
}

// NewRoleDirectory creates an access.Directory over the roles table.
func NewRoleDirectory(db *database.DB) access.Directory {
	return &roleDirectoryImpl{db: db}
}

// Roles loads the full role table: name, level, and permission strings.
func (r *roleDirectoryImpl) Roles(ctx context.Context) (map[access.Role]access.RoleDefinition, error) {
	query := `
		SELECT name, level, permissions
		FROM roles
		ORDER BY level
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	table := make(map[access.Role]access.RoleDefinition)
	for rows.Next() {
		var (
			name  string
			level int
			perms []string
		)
		if err := rows.Scan(&name, &level, pq.Array(&perms)); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}

		def := access.RoleDefinition{Level: access.RoleLevel(level)}
		for _, p := range perms {
			def.Permissions = append(def.Permissions, access.Permission(p))
		}
		table[access.Role(name)] = def
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return table, nil
}
