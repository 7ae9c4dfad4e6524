package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/models"
)

// AuditLogRepository defines append-only audit log persistence.
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// auditLogRepoImpl implements AuditLogRepository
type auditLogRepoImpl struct {
	db *database.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *database.DB) AuditLogRepository {
	return &auditLogRepoImpl{db: db}
}

func scanAuditLogRow(scanner rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := scanner.Scan(
		&log.ID,
		&log.UserID,
		&log.EventType,
		&log.EventCategory,
		&log.EventDetails,
		&log.Severity,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return log, nil
}

// Create appends an audit event. There is no update or delete path.
func (r *auditLogRepoImpl) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	query := `
		INSERT INTO audit_logs (id, user_id, event_type, event_category, event_details, severity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, event_type, event_category, event_details, severity, created_at
	`

	created, err := scanAuditLogRow(r.db.Pool.QueryRow(ctx, query,
		uuid.New(),
		log.UserID,
		log.EventType,
		log.EventCategory,
		log.EventDetails,
		log.Severity,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}

	return created, nil
}

// GetByUserID retrieves a user's audit trail, newest first
func (r *auditLogRepoImpl) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, event_type, event_category, event_details, severity, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return logs, nil
}

// CountByUserID returns the audit log count for a user
func (r *auditLogRepoImpl) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_logs WHERE user_id = $1`

	var count int64
	if err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}
