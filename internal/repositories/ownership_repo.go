package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/database"
)

// Resource types with registered ownership resolvers.
const (
	ResourceTypeListing = "listing"
	ResourceTypeOrder   = "order"
)

// NewOwnershipRegistry wires the marketplace's ownership resolvers. Both
// resolvers return AccessNone for a missing resource and for someone
// else's resource alike, so a denial never confirms existence.
func NewOwnershipRegistry(db *database.DB) *access.ResolverRegistry {
	registry := access.NewResolverRegistry()
	registry.Register(ResourceTypeListing, listingOwnership(db))
	registry.Register(ResourceTypeOrder, orderOwnership(db))
	return registry
}

func listingOwnership(db *database.DB) access.OwnershipResolverFunc {
	return func(ctx context.Context, _, resourceID, userID string) (access.OwnershipResult, error) {
		query := `SELECT seller_id FROM listings WHERE id = $1`

		var sellerID string
		err := db.Pool.QueryRow(ctx, query, resourceID).Scan(&sellerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return noAccess(), nil
			}
			return access.OwnershipResult{}, fmt.Errorf("failed to resolve listing ownership: %w", err)
		}

		if sellerID != userID {
			return noAccess(), nil
		}
		return access.OwnershipResult{AccessLevel: access.AccessFull}, nil
	}
}

func orderOwnership(db *database.DB) access.OwnershipResolverFunc {
	return func(ctx context.Context, _, resourceID, userID string) (access.OwnershipResult, error) {
		query := `SELECT buyer_id, seller_id FROM orders WHERE id = $1`

		var buyerID, sellerID string
		err := db.Pool.QueryRow(ctx, query, resourceID).Scan(&buyerID, &sellerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return noAccess(), nil
			}
			return access.OwnershipResult{}, fmt.Errorf("failed to resolve order ownership: %w", err)
		}

		switch userID {
		case sellerID:
			return access.OwnershipResult{AccessLevel: access.AccessWrite}, nil
		case buyerID:
			// Buyers see their orders but only the seller mutates them.
			return access.OwnershipResult{AccessLevel: access.AccessRead}, nil
		}
		return noAccess(), nil
	}
}

func noAccess() access.OwnershipResult {
	return access.OwnershipResult{AccessLevel: access.AccessNone, Reason: "no access"}
}
