package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/migrations"
)

// TestDB manages the PostgreSQL testcontainer and database handles
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("bastion"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations from the embedded set
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	// Goose needs a stdlib DB handle
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all mutable tables for test isolation. Roles are
// seeded by migration and left alone.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"mfa_attempts",
		"mfa_backup_codes",
		"mfa_email_challenges",
		"trusted_devices",
		"mfa_settings",
		"audit_logs",
		"orders",
		"listings",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// SeedUser inserts a test user and returns its id. The hash uses the
// minimum bcrypt cost to keep test runs fast; verification does not
// depend on cost.
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`

	var id string
	if err := pool.QueryRow(ctx, query, email, string(hash)).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// SeedListing inserts a listing owned by sellerID and returns its id
func SeedListing(ctx context.Context, pool *pgxpool.Pool, sellerID, title string) (string, error) {
	query := `
		INSERT INTO listings (seller_id, title)
		VALUES ($1, $2)
		RETURNING id
	`

	var id string
	if err := pool.QueryRow(ctx, query, sellerID, title).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert listing: %w", err)
	}
	return id, nil
}

// SeedOrder inserts an order between buyer and seller and returns its id
func SeedOrder(ctx context.Context, pool *pgxpool.Pool, buyerID, sellerID string) (string, error) {
	query := `
		INSERT INTO orders (buyer_id, seller_id)
		VALUES ($1, $2)
		RETURNING id
	`

	var id string
	if err := pool.QueryRow(ctx, query, buyerID, sellerID).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}
