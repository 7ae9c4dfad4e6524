package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedDevices_TrustIsIdempotentPerFingerprint(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	email, password := TestUser("device")
	userID, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	name := "kitchen laptop"
	first, err := testServer.Devices.Trust(ctx, userID, "fp-aabbccdd", &name)
	require.NoError(t, err)

	second, err := testServer.Devices.Trust(ctx, userID, "fp-aabbccdd", nil)
	require.NoError(t, err)

	// Re-trusting refreshes the row instead of duplicating it, and a nil
	// name keeps the old one
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.DeviceName)
	assert.Equal(t, name, *second.DeviceName)

	var count int
	err = testDB.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM trusted_devices WHERE user_id = $1 AND device_fingerprint = $2",
		userID, "fp-aabbccdd",
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTrustedDevices_ExpiredTrustIsNotHonored(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	email, password := TestUser("expiry")
	userID, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	device, err := testServer.Devices.Trust(ctx, userID, "fp-expired", nil)
	require.NoError(t, err)

	trusted, err := testServer.Devices.IsTrusted(ctx, userID, "fp-expired")
	require.NoError(t, err)
	assert.True(t, trusted)

	_, err = testDB.Pool.Exec(ctx,
		"UPDATE trusted_devices SET trusted_until = NOW() - INTERVAL '1 hour' WHERE id = $1", device.ID)
	require.NoError(t, err)

	trusted, err = testServer.Devices.IsTrusted(ctx, userID, "fp-expired")
	require.NoError(t, err)
	assert.False(t, trusted, "trust past its expiry must not be honored")
}

func TestTrustedDevices_RevokeAllOnDisable(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	email, password := TestUser("revokeall")
	userID, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	_, err = testServer.Devices.Trust(ctx, userID, "fp-one", nil)
	require.NoError(t, err)
	_, err = testServer.Devices.Trust(ctx, userID, "fp-two", nil)
	require.NoError(t, err)

	require.NoError(t, testServer.Devices.RevokeAll(ctx, userID))

	for _, fp := range []string{"fp-one", "fp-two"} {
		trusted, err := testServer.Devices.IsTrusted(ctx, userID, fp)
		require.NoError(t, err)
		assert.False(t, trusted)
	}

	// Rows are retired, not deleted; the trail survives revocation
	var count int
	err = testDB.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM trusted_devices WHERE user_id = $1", userID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
