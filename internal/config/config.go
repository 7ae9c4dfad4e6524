package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	MFA      MFAConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type MFAConfig struct {
	Issuer              string
	BackupCodeCount     int
	TrustedDeviceTTL    time.Duration
	VerifyWindow        int // TOTP steps accepted either side of now
	MaxAttempts         int
	AttemptWindow       time.Duration
	ChallengeExpiry     time.Duration // email challenge lifetime
	TimingBaseDelayMs   int
	TimingRandomDelayMs int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:   jwtSecret,
			TokenExpiry: getEnvAsDuration("TOKEN_EXPIRY", 15*time.Minute),
		},
		MFA: MFAConfig{
			Issuer:              getEnv("MFA_ISSUER", "Stallmarket"),
			BackupCodeCount:     getEnvAsInt("MFA_BACKUP_CODE_COUNT", 10),
			TrustedDeviceTTL:    getEnvAsDuration("MFA_TRUSTED_DEVICE_TTL", 30*24*time.Hour),
			VerifyWindow:        getEnvAsInt("MFA_VERIFY_WINDOW", 1),
			MaxAttempts:         getEnvAsInt("MFA_MAX_ATTEMPTS", 5),
			AttemptWindow:       getEnvAsDuration("MFA_ATTEMPT_WINDOW", 15*time.Minute),
			ChallengeExpiry:     getEnvAsDuration("MFA_CHALLENGE_EXPIRY", 10*time.Minute),
			TimingBaseDelayMs:   getEnvAsInt("MFA_TIMING_BASE_DELAY_MS", 100),
			TimingRandomDelayMs: getEnvAsInt("MFA_TIMING_RANDOM_DELAY_MS", 100),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "security@stallmarket.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.MFA.BackupCodeCount < 1 || cfg.MFA.BackupCodeCount > 50 {
		return nil, fmt.Errorf("MFA_BACKUP_CODE_COUNT must be between 1 and 50 (got %d)", cfg.MFA.BackupCodeCount)
	}
	if cfg.MFA.VerifyWindow < 0 || cfg.MFA.VerifyWindow > 2 {
		// Anything wider than ±2 steps stretches code validity past two
		// minutes and defeats the point of a time-based factor.
		return nil, fmt.Errorf("MFA_VERIFY_WINDOW must be between 0 and 2 (got %d)", cfg.MFA.VerifyWindow)
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
