package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/background"
	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/handlers"
	middlewareCustom "github.com/stallmarket/bastion/internal/middleware"
	"github.com/stallmarket/bastion/internal/otp"
	"github.com/stallmarket/bastion/internal/repositories"
	"github.com/stallmarket/bastion/internal/routes"
	"github.com/stallmarket/bastion/internal/services"
	pkgauth "github.com/stallmarket/bastion/pkg/auth"
	pkglogger "github.com/stallmarket/bastion/pkg/logger"
)

// SentChallenge is one captured email challenge
type SentChallenge struct {
	Email string
	Code  string
}

// CapturingChallengeSender records challenge codes instead of sending email
type CapturingChallengeSender struct {
	mu   sync.Mutex
	Sent []SentChallenge
}

func (c *CapturingChallengeSender) SendChallenge(ctx context.Context, email, code string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, SentChallenge{Email: email, Code: code})
	return nil
}

// LastCode returns the most recently captured challenge code
func (c *CapturingChallengeSender) LastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return ""
	}
	return c.Sent[len(c.Sent)-1].Code
}

// TestServer wraps httptest.Server with the full service stack over a real
// database. Email delivery is captured, not sent.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	TokenManager *auth.TokenManager
	Engine       *otp.Engine
	Challenges   *CapturingChallengeSender
	MFAService   *services.MFAService
	Devices      *services.TrustedDeviceService
	Vault        *services.BackupCodeVault
	Evaluator    *access.Evaluator
	Cleanup      *background.CleanupManager
}

// NewTestServer wires the production stack against db
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	settingsRepo := repositories.NewMFASettingsRepository(db)
	backupCodeRepo := repositories.NewBackupCodeRepository(db)
	deviceRepo := repositories.NewTrustedDeviceRepository(db)
	attemptRepo := repositories.NewMFAAttemptRepository(db)
	challengeRepo := repositories.NewEmailChallengeRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	roleDirectory := repositories.NewRoleDirectory(db)
	ownershipRegistry := repositories.NewOwnershipRegistry(db)
	credentialSource := repositories.NewCredentialSource(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, auditLogger, logger)

	evaluator := access.NewEvaluator(roleDirectory, ownershipRegistry, auditService, logger)
	tokenManager := auth.NewTokenManager("test-secret-32-characters-long-yes", 15*time.Minute)

	engine := otp.NewEngine("StallmarketTest")

	vault := services.NewBackupCodeVault(backupCodeRepo, auditService, logger, 10)
	deviceService := services.NewTrustedDeviceService(deviceRepo, auditService, logger, 30*24*time.Hour)

	sender := &CapturingChallengeSender{}
	challengeService := services.NewEmailChallengeService(challengeRepo, sender, auditService, logger, 10*time.Minute)

	reauthVerifier := pkgauth.NewPasswordReauthVerifier(credentialSource)

	mfaService := services.NewMFAService(
		settingsRepo,
		attemptRepo,
		vault,
		deviceService,
		challengeService,
		engine,
		reauthVerifier,
		nil, // no timing padding in tests
		auditService,
		logger,
		services.MFAConfig{
			VerifyWindow:  1,
			MaxAttempts:   5,
			AttemptWindow: 15 * time.Minute,
		},
	)

	cleanupManager := background.NewCleanupManager(attemptRepo, challengeRepo, logger, time.Hour, 24*time.Hour)

	mfaHandler := handlers.NewMFAHandler(mfaService, deviceService, challengeService, nil, logger)
	deviceHandler := handlers.NewDeviceHandler(deviceService, logger)
	auditHandler := handlers.NewAuditHandler(auditService, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, mfaHandler, deviceHandler, auditHandler, tokenManager, evaluator, logger)

	return &TestServer{
		Server:       httptest.NewServer(r),
		DB:           db,
		TokenManager: tokenManager,
		Engine:       engine,
		Challenges:   sender,
		MFAService:   mfaService,
		Devices:      deviceService,
		Vault:        vault,
		Evaluator:    evaluator,
		Cleanup:      cleanupManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// TokenFor issues a bearer token for userID with the given roles
func (ts *TestServer) TokenFor(userID string, roles ...access.Role) (string, error) {
	if len(roles) == 0 {
		roles = []access.Role{access.RoleUser}
	}
	return ts.TokenManager.IssueToken(userID, roles)
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses the JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
