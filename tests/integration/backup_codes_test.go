package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupCodes_ConcurrentConsumeSucceedsExactlyOnce(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	email, password := TestUser("concurrent")
	userID, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	codes, err := testServer.Vault.Regenerate(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, codes)

	target := string(codes[0])

	const attempts = 16
	results := make([]bool, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := testServer.Vault.Consume(ctx, userID, target)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	assert.Equal(t, 1, successes, "a backup code must be consumable exactly once")
}

func TestBackupCodes_RegenerateInvalidatesOldBatch(t *testing.T) {
	resetTables(t)
	ctx := context.Background()

	email, password := TestUser("regen")
	userID, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	oldCodes, err := testServer.Vault.Regenerate(ctx, userID)
	require.NoError(t, err)

	newCodes, err := testServer.Vault.Regenerate(ctx, userID)
	require.NoError(t, err)

	ok, err := testServer.Vault.Consume(ctx, userID, string(oldCodes[0]))
	require.NoError(t, err)
	assert.False(t, ok, "codes from a replaced batch must not verify")

	ok, err = testServer.Vault.Consume(ctx, userID, string(newCodes[0]))
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := testServer.Vault.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, len(newCodes)-1, remaining)
}
