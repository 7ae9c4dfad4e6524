package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/stallmarket/bastion/internal/repositories"
)

// CleanupManager periodically prunes stale MFA state: verification attempts
// past the rate-limit horizon and expired email challenges. Trusted devices
// are left alone; expiry there is enforced at read time and the rows stay
// for the audit trail.
type CleanupManager struct {
	attemptRepo   repositories.MFAAttemptRepository
	challengeRepo repositories.EmailChallengeRepository
	logger        *slog.Logger
	interval      time.Duration
	retention     time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager. retention is how long
// attempt rows are kept; it must exceed the rate-limit window.
func NewCleanupManager(
	attemptRepo repositories.MFAAttemptRepository,
	challengeRepo repositories.EmailChallengeRepository,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo:   attemptRepo,
		challengeRepo: challengeRepo,
		logger:        logger,
		interval:      interval,
		retention:     retention,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting MFA state cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	threshold := time.Now().Add(-cm.retention)
	if err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx, threshold); err != nil {
		cm.logger.Error("failed to prune verification attempts", slog.Any("error", err))
	}

	if err := cm.challengeRepo.DeleteExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to prune email challenges", slog.Any("error", err))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
