package balance

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

//go:generate mockgen -source=balance_repo.go -destination=mock/balance_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, b *LeaveBalance) error
	FindByEmployee(ctx context.Context, employeeID string, year int) (*LeaveBalance, error)
	// Debit atomically subtracts days from one category counter. It only
	// succeeds when the counter can cover the amount; the returned bool is
	// false when the guard rejected the update, so a counter can never go
	// negative even under concurrent approvals.
	Debit(ctx context.Context, employeeID string, year int, cat Category, days int) (bool, error)
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

func (r *repository) Create(ctx context.Context, b *LeaveBalance) error {
	query := `
        INSERT INTO leave_balances (
            id, employee_id, year, sick_days, casual_days, earned_days, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
    `
	_, err := r.execer().ExecContext(
		ctx, query,
		b.ID, b.EmployeeID, b.Year, b.SickDays, b.CasualDays, b.EarnedDays,
	)
	return err
}

func (r *repository) FindByEmployee(ctx context.Context, employeeID string, year int) (*LeaveBalance, error) {
	var b LeaveBalance
	err := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Where("year = ?", year).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) Debit(ctx context.Context, employeeID string, year int, cat Category, days int) (bool, error) {
	column, ok := categoryColumns[cat]
	if !ok {
		return false, fmt.Errorf("unknown leave category: %s", cat)
	}

	// The column name comes from the category table, never from input.
	query := fmt.Sprintf(`
UPDATE leave_balances
SET %[1]s = %[1]s - $1, updated_at = NOW()
WHERE employee_id = $2 AND year = $3 AND %[1]s >= $1
`, column)

	res, err := r.execer().ExecContext(ctx, query, days, employeeID, year)
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
		// Surfaced on the next ExecContext call.
		return brokenExecer{err: err}
	}
	return sqlDB
}

type brokenExecer struct{ err error }

func (b brokenExecer) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, b.err
}
