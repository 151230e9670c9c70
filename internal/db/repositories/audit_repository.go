// Package repositories implements the data access layer for the audit service.
// Each repository type encapsulates all database queries for one aggregate.
// Handlers and recorders never issue SQL directly. This layer is also where
// mirror observers are notified: the observer hook lives next to the INSERT,
// so every write path that persists a record through the repository mirrors
// it automatically.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/db/models"
	"github.com/bastionhq/bastion-audit/internal/telemetry"
)

// AuditRepository handles audit record database operations. It implements
// audit.RecordStore, audit.LoginStore, and audit.PasswordChangeStore.
type AuditRepository struct {
	db        *sqlx.DB
	observers []audit.RecordObserver
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AddObserver registers an observer notified after every successful persist.
// Must be called during wiring, before the repository receives writes.
func (r *AuditRepository) AddObserver(o audit.RecordObserver) {
	r.observers = append(r.observers, o)
}

func (r *AuditRepository) notify(category audit.Category, record any) {
	for _, o := range r.observers {
		o.RecordPersisted(category, record)
	}
}

const insertOperateLog = `
	INSERT INTO operate_logs (id, user_display, action, resource_type, resource, remote_addr, org_id, created_at)
	VALUES (:id, :user_display, :action, :resource_type, :resource, :remote_addr, :org_id, :created_at)
`

// CreateOperateLog persists one operate log record.
func (r *AuditRepository) CreateOperateLog(ctx context.Context, log *models.OperateLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	if _, err := r.db.NamedExecContext(ctx, insertOperateLog, log); err != nil {
		return fmt.Errorf("inserting operate log: %w", err)
	}

	telemetry.AuditRecordsTotal.WithLabelValues("operate", log.Action).Inc()
	r.notify(audit.CategoryOperationLog, log)
	return nil
}

// CreateOperateLogs persists a relation-change batch as a single multi-row
// insert: the batch is visible all-or-none.
func (r *AuditRepository) CreateOperateLogs(ctx context.Context, logs []*models.OperateLog) error {
	if len(logs) == 0 {
		return nil
	}
	now := time.Now()
	for _, log := range logs {
		log.ID = uuid.New().String()
		log.CreatedAt = now
	}

	if _, err := r.db.NamedExecContext(ctx, insertOperateLog, logs); err != nil {
		return fmt.Errorf("inserting operate log batch: %w", err)
	}

	telemetry.AuditBatchSize.Observe(float64(len(logs)))
	for _, log := range logs {
		telemetry.AuditRecordsTotal.WithLabelValues("operate", log.Action).Inc()
		r.notify(audit.CategoryOperationLog, log)
	}
	return nil
}

// CreatePasswordChangeLog persists one password-change record inside its own
// transaction. Errors propagate: this path has no mirror to compensate with.
func (r *AuditRepository) CreatePasswordChangeLog(ctx context.Context, log *models.PasswordChangeLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning password-change transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO password_change_logs (id, user_display, change_by, remote_addr, org_id, created_at)
		VALUES (:id, :user_display, :change_by, :remote_addr, :org_id, :created_at)
	`
	if _, err := tx.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("inserting password change log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing password change log: %w", err)
	}

	telemetry.AuditRecordsTotal.WithLabelValues("password_change", "-").Inc()
	r.notify(audit.CategoryPasswordChangeLog, log)
	return nil
}

// CreateLoginLog persists one login record.
func (r *AuditRepository) CreateLoginLog(ctx context.Context, log *models.UserLoginLog) error {
	log.ID = uuid.New().String()
	log.CreatedAt = time.Now()

	query := `
		INSERT INTO user_login_logs (id, username, ip, type, user_agent, backend, mfa, status, reason, created_at)
		VALUES (:id, :username, :ip, :type, :user_agent, :backend, :mfa, :status, :reason, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("inserting login log: %w", err)
	}

	telemetry.AuditRecordsTotal.WithLabelValues("login", "-").Inc()
	r.notify(audit.CategoryLoginLog, log)
	return nil
}

// OperateLogFilters contains filters for querying operate logs
type OperateLogFilters struct {
	User         *string
	Action       *string
	ResourceType *string
	OrgID        *string
	StartDate    *time.Time
	EndDate      *time.Time
}

// ListOperateLogs retrieves operate logs with optional filters and pagination,
// newest first.
func (r *AuditRepository) ListOperateLogs(ctx context.Context, filters OperateLogFilters, limit, offset int) ([]*models.OperateLog, int, error) {
	where := " WHERE 1=1"
	args := make([]interface{}, 0)
	paramIndex := 1

	addFilter := func(column string, op string, value interface{}) {
		where += fmt.Sprintf(" AND %s %s $%d", column, op, paramIndex)
		args = append(args, value)
		paramIndex++
	}

	if filters.User != nil {
		addFilter("user_display", "=", *filters.User)
	}
	if filters.Action != nil {
		addFilter("action", "=", *filters.Action)
	}
	if filters.ResourceType != nil {
		addFilter("resource_type", "=", *filters.ResourceType)
	}
	if filters.OrgID != nil {
		addFilter("org_id", "=", *filters.OrgID)
	}
	if filters.StartDate != nil {
		addFilter("created_at", ">=", *filters.StartDate)
	}
	if filters.EndDate != nil {
		addFilter("created_at", "<=", *filters.EndDate)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM operate_logs"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM operate_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, paramIndex, paramIndex+1,
	)
	args = append(args, limit, offset)

	logs := make([]*models.OperateLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// LoginLogFilters contains filters for querying login logs
type LoginLogFilters struct {
	Username  *string
	Status    *bool
	StartDate *time.Time
	EndDate   *time.Time
}

// ListLoginLogs retrieves login logs with optional filters and pagination,
// newest first.
func (r *AuditRepository) ListLoginLogs(ctx context.Context, filters LoginLogFilters, limit, offset int) ([]*models.UserLoginLog, int, error) {
	where := " WHERE 1=1"
	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.Username != nil {
		where += fmt.Sprintf(" AND username = $%d", paramIndex)
		args = append(args, *filters.Username)
		paramIndex++
	}
	if filters.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", paramIndex)
		args = append(args, *filters.Status)
		paramIndex++
	}
	if filters.StartDate != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}
	if filters.EndDate != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM user_login_logs"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM user_login_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, paramIndex, paramIndex+1,
	)
	args = append(args, limit, offset)

	logs := make([]*models.UserLoginLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// ListPasswordChangeLogs retrieves password-change logs with pagination,
// newest first, optionally scoped to one org.
func (r *AuditRepository) ListPasswordChangeLogs(ctx context.Context, orgID *string, limit, offset int) ([]*models.PasswordChangeLog, int, error) {
	where := " WHERE 1=1"
	args := make([]interface{}, 0)
	paramIndex := 1

	if orgID != nil {
		where += fmt.Sprintf(" AND org_id = $%d", paramIndex)
		args = append(args, *orgID)
		paramIndex++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM password_change_logs"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		"SELECT * FROM password_change_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, paramIndex, paramIndex+1,
	)
	args = append(args, limit, offset)

	logs := make([]*models.PasswordChangeLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// OperateLogsBetween streams all operate logs in [from, to), oldest first,
// for the archive export job.
func (r *AuditRepository) OperateLogsBetween(ctx context.Context, from, to time.Time) ([]*models.OperateLog, error) {
	logs := make([]*models.OperateLog, 0)
	err := r.db.SelectContext(ctx, &logs,
		"SELECT * FROM operate_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at", from, to)
	return logs, err
}

// LoginLogsBetween streams all login logs in [from, to), oldest first.
func (r *AuditRepository) LoginLogsBetween(ctx context.Context, from, to time.Time) ([]*models.UserLoginLog, error) {
	logs := make([]*models.UserLoginLog, 0)
	err := r.db.SelectContext(ctx, &logs,
		"SELECT * FROM user_login_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at", from, to)
	return logs, err
}

// PasswordChangeLogsBetween streams all password-change logs in [from, to),
// oldest first.
func (r *AuditRepository) PasswordChangeLogsBetween(ctx context.Context, from, to time.Time) ([]*models.PasswordChangeLog, error) {
	logs := make([]*models.PasswordChangeLog, 0)
	err := r.db.SelectContext(ctx, &logs,
		"SELECT * FROM password_change_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at", from, to)
	return logs, err
}
