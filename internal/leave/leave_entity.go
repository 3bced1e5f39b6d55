package leave

import (
	"time"

	"go-leave/internal/balance"

	"github.com/google/uuid"
)

const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusCanceled = "CANCELLED"
)

// isAllowedStatusTransition encodes the leave state machine: PENDING is the
// only non-terminal state, and it may move to exactly one decision.
func isAllowedStatusTransition(currentStatus, targetStatus string) bool {
	if currentStatus != StatusPending {
		return false
	}
	switch targetStatus {
	case StatusApproved, StatusRejected, StatusCanceled:
		return true
	default:
		return false
	}
}

// Leave is one leave request and its position in the lifecycle. The ledger
// is touched only when a request reaches APPROVED.
type Leave struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey"`
	RequestNumber string           `gorm:"type:varchar(20);not null;uniqueIndex:uq_leave_request_number"`
	EmployeeID    uuid.UUID        `gorm:"type:uuid;not null;index:idx_leaves_employee"`
	Employee      *EmployeeRef     `gorm:"foreignKey:EmployeeID;references:ID"`
	LeaveType     balance.Category `gorm:"type:varchar(10);not null"`

	StartDate    time.Time `gorm:"type:date;not null"`
	EndDate      time.Time `gorm:"type:date;not null"`
	NumberOfDays int       `gorm:"type:int;not null"`
	Reason       string    `gorm:"type:text;not null"`

	Status      string     `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_leaves_status"`
	ApprovedBy  *uuid.UUID `gorm:"type:uuid"`
	Comments    *string    `gorm:"type:text"`
	AppliedDate time.Time  `gorm:"type:date;not null"`
	DecidedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Leave) TableName() string { return "leaves" }

// EmployeeRef is a read-only projection of the employees table, joined in
// so list views can show names and the notifier can address the owner.
type EmployeeRef struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	FullName  string     `gorm:"type:varchar(120)"`
	Email     string     `gorm:"type:varchar(200)"`
	ManagerID *uuid.UUID `gorm:"type:uuid"`
}

func (EmployeeRef) TableName() string { return "employees" }
