package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stallmarket/bastion/internal/models"
)

func TestEmailChallengeService_Issue_StoresHashNotPlaintext(t *testing.T) {
	var storedHash string
	repo := &MockEmailChallengeRepository{
		CreateFunc: func(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
			storedHash = codeHash
			return nil
		},
	}
	sender := &MockChallengeSender{}
	audit := &MockAuditRecorder{}
	svc := NewEmailChallengeService(repo, sender, audit, slog.Default(), 10*time.Minute)

	err := svc.Issue(context.Background(), "user123", "buyer@example.com")

	require.NoError(t, err)
	require.Len(t, sender.SentCodes, 1)

	sent := sender.SentCodes[0]
	assert.Len(t, sent, 6)
	assert.NotEqual(t, sent, storedHash)
	assert.Equal(t, HashCode(sent), storedHash)
	assert.True(t, audit.HasEvent(models.AuditEventEmailChallenge))
}

func TestEmailChallengeService_Issue_SendFailure(t *testing.T) {
	sender := &MockChallengeSender{
		SendChallengeFunc: func(ctx context.Context, email, code string, expiresAt time.Time) error {
			return assert.AnError
		},
	}
	svc := NewEmailChallengeService(&MockEmailChallengeRepository{}, sender, &MockAuditRecorder{}, slog.Default(), 10*time.Minute)

	err := svc.Issue(context.Background(), "user123", "buyer@example.com")

	assert.ErrorIs(t, err, assert.AnError)
}

func TestEmailChallengeService_Verify_ConsumesByHash(t *testing.T) {
	var consumedHash string
	repo := &MockEmailChallengeRepository{
		ConsumeFunc: func(ctx context.Context, userID, codeHash string) (bool, error) {
			consumedHash = codeHash
			return true, nil
		},
	}
	svc := NewEmailChallengeService(repo, &MockChallengeSender{}, &MockAuditRecorder{}, slog.Default(), 10*time.Minute)

	ok, err := svc.Verify(context.Background(), "user123", "482913")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, HashCode("482913"), consumedHash)
}

func TestEmailChallengeService_Verify_ExpiredOrUsed(t *testing.T) {
	svc := NewEmailChallengeService(&MockEmailChallengeRepository{}, &MockChallengeSender{}, &MockAuditRecorder{}, slog.Default(), 10*time.Minute)

	ok, err := svc.Verify(context.Background(), "user123", "482913")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRandomDigits(t *testing.T) {
	code, err := randomDigits(6)

	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.GreaterOrEqual(t, r, '0')
		assert.LessOrEqual(t, r, '9')
	}
}
