package balance

import (
	"time"

	balanceerrors "go-leave/internal/balance/errors"

	"github.com/google/uuid"
)

// Category is the leave category a request draws its days from.
type Category string

const (
	CategorySick   Category = "SICK"
	CategoryCasual Category = "CASUAL"
	CategoryEarned Category = "EARNED"
)

// categoryColumns maps each category onto its ledger column so that the
// check and debit paths stay a single generic implementation.
var categoryColumns = map[Category]string{
	CategorySick:   "sick_days",
	CategoryCasual: "casual_days",
	CategoryEarned: "earned_days",
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := categoryColumns[c]; !ok {
		return "", balanceerrors.ErrInvalidLeaveType
	}
	return c, nil
}

func (c Category) String() string { return string(c) }

// Annual allotment per category, provisioned when an employee is created.
const (
	DefaultSickDays   = 10
	DefaultCasualDays = 12
	DefaultEarnedDays = 18
)

// LeaveBalance holds the remaining allotted days per category for one
// employee and accounting year. Counters only move as a side effect of a
// leave approval and may never go below zero.
type LeaveBalance struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_balance_employee_year" json:"employee_id"`
	Year       int       `gorm:"not null;uniqueIndex:uq_balance_employee_year" json:"year"`

	SickDays   int `gorm:"type:int;not null" json:"sick_days"`
	CasualDays int `gorm:"type:int;not null" json:"casual_days"`
	EarnedDays int `gorm:"type:int;not null" json:"earned_days"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (LeaveBalance) TableName() string { return "leave_balances" }

// NewDefault provisions the ledger handed to every new employee.
func NewDefault(employeeID uuid.UUID, year int) *LeaveBalance {
	return &LeaveBalance{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Year:       year,
		SickDays:   DefaultSickDays,
		CasualDays: DefaultCasualDays,
		EarnedDays: DefaultEarnedDays,
	}
}

func (b *LeaveBalance) counter(cat Category) *int {
	switch cat {
	case CategorySick:
		return &b.SickDays
	case CategoryCasual:
		return &b.CasualDays
	case CategoryEarned:
		return &b.EarnedDays
	}
	return nil
}

// Available returns the remaining days for a category. Unknown categories
// report zero; callers validate through ParseCategory first.
func (b *LeaveBalance) Available(cat Category) int {
	if c := b.counter(cat); c != nil {
		return *c
	}
	return 0
}

// CheckSufficient fails without mutating anything when the category cannot
// cover the requested days. It is the read half of the check-then-debit
// protocol; the debit itself is a guarded SQL update in the repository.
func (b *LeaveBalance) CheckSufficient(cat Category, days int) error {
	if available := b.Available(cat); available < days {
		return balanceerrors.InsufficientBalance(cat.String(), available, days)
	}
	return nil
}
