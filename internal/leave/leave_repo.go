package leave

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=leave_repo.go -destination=mock/leave_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, l *Leave) error
	FindByID(ctx context.Context, id string) (*Leave, error)
	FindByEmployee(ctx context.Context, employeeID string) ([]Leave, error)
	FindByManager(ctx context.Context, managerID string) ([]Leave, error)
	// TransitionFromPending flips the status only while the row is still
	// PENDING. The returned bool is false when another operation decided
	// the request first, so a leave row is never written by two
	// transitions.
	TransitionFromPending(ctx context.Context, id, targetStatus string, approvedBy *string, comments *string, decidedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
	tx *sql.Tx
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, tx: tx}
}

func (r *repository) Create(ctx context.Context, l *Leave) error {
	query := `
        INSERT INTO leaves (
            id, request_number, employee_id, leave_type, start_date, end_date,
            number_of_days, reason, status, applied_date, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
    `
	_, err := r.execer().ExecContext(
		ctx, query,
		l.ID, l.RequestNumber, l.EmployeeID, l.LeaveType, l.StartDate, l.EndDate,
		l.NumberOfDays, l.Reason, l.Status, l.AppliedDate,
	)
	return err
}

func (r *repository) FindByID(ctx context.Context, id string) (*Leave, error) {
	var l Leave
	err := r.db.WithContext(ctx).
		Preload("Employee").
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) FindByEmployee(ctx context.Context, employeeID string) ([]Leave, error) {
	var leaves []Leave
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Where("employee_id = ?", employeeID).
		Order("applied_date ASC, created_at ASC").
		Find(&leaves).Error
	return leaves, err
}

func (r *repository) FindByManager(ctx context.Context, managerID string) ([]Leave, error) {
	var leaves []Leave
	err := r.db.WithContext(ctx).
		Preload("Employee").
		Joins("JOIN employees ON employees.id = leaves.employee_id").
		Where("employees.manager_id = ?", managerID).
		Order("leaves.applied_date ASC, leaves.created_at ASC").
		Find(&leaves).Error
	return leaves, err
}

func (r *repository) TransitionFromPending(
	ctx context.Context,
	id, targetStatus string,
	approvedBy *string,
	comments *string,
	decidedAt time.Time,
) (bool, error) {
	query := `
UPDATE leaves
SET
	status = $2,
	approved_by = $3,
	comments = $4,
	decided_at = $5,
	updated_at = NOW()
WHERE id = $1 AND status = $6
`
	res, err := r.execer().ExecContext(ctx, query, id, targetStatus, approvedBy, comments, decidedAt, StatusPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) execer() interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
} {
	if r.tx != nil {
		return r.tx
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return brokenExecer{err: err}
	}
	return sqlDB
}

type brokenExecer struct{ err error }

func (b brokenExecer) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, b.err
}
