package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/repositories"
	pkglogger "github.com/stallmarket/bastion/pkg/logger"
)

// ChallengeSender delivers a short-lived verification code to the user.
type ChallengeSender interface {
	SendChallenge(ctx context.Context, email, code string, expiresAt time.Time) error
}

// SESChallengeSender delivers email challenges through AWS SES.
type SESChallengeSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESChallengeSender creates an SES-backed challenge sender.
func NewSESChallengeSender(region, fromAddress string, logger *slog.Logger) (*SESChallengeSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESChallengeSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendChallenge emails the verification code.
func (s *SESChallengeSender) SendChallenge(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Minutes())
	textBody := fmt.Sprintf(
		"Your Stallmarket verification code is: %s\n\nIt expires in %d minutes. If you did not request this code, you can ignore this email.",
		code, minutes,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("Your Stallmarket verification code"),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send challenge email: %w", err)
	}

	s.logger.InfoContext(ctx, "challenge email sent", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}

// EmailChallengeService issues and verifies email-method challenges. Only
// the SHA-256 digest of a challenge is stored; consumption is the same
// single-use conditional update backup codes use.
type EmailChallengeService struct {
	repo   repositories.EmailChallengeRepository
	sender ChallengeSender
	audit  AuditRecorder
	logger *slog.Logger
	expiry time.Duration
}

// NewEmailChallengeService creates a new email challenge service
func NewEmailChallengeService(repo repositories.EmailChallengeRepository, sender ChallengeSender, audit AuditRecorder, logger *slog.Logger, expiry time.Duration) *EmailChallengeService {
	return &EmailChallengeService{
		repo:   repo,
		sender: sender,
		audit:  audit,
		logger: logger,
		expiry: expiry,
	}
}

// Issue generates a 6-digit challenge, stores its digest, and delivers it.
// A new challenge supersedes any outstanding one for the user.
func (s *EmailChallengeService) Issue(ctx context.Context, userID, email string) error {
	code, err := randomDigits(6)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.expiry)
	if err := s.repo.Create(ctx, userID, HashCode(code), expiresAt); err != nil {
		return fmt.Errorf("failed to store email challenge: %w", err)
	}

	if err := s.sender.SendChallenge(ctx, email, code, expiresAt); err != nil {
		return err
	}

	s.audit.Record(ctx, userID, models.AuditEventEmailChallenge, models.AuditCategoryMFA,
		models.AuditSeverityInfo, models.AuditDetails{"delivery": "email"})
	return nil
}

// Verify consumes the challenge; expired or already-used challenges fail.
func (s *EmailChallengeService) Verify(ctx context.Context, userID, code string) (bool, error) {
	ok, err := s.repo.Consume(ctx, userID, HashCode(code))
	if err != nil {
		return false, fmt.Errorf("email challenge verification failed: %w", err)
	}
	return ok, nil
}

// randomDigits produces n cryptographically random decimal digits.
func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate challenge code: %w", err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
