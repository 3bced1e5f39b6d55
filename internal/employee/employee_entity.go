package employee

import (
	"time"

	"github.com/google/uuid"
)

// Employee is the directory record a leave request belongs to. ManagerID is
// nil at the top of the reporting chain.
type Employee struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EmployeeNumber string     `gorm:"type:varchar(20);not null;uniqueIndex:uq_employee_number"`
	FullName       string     `gorm:"type:varchar(120);not null"`
	Email          string     `gorm:"type:varchar(200);not null;uniqueIndex:uq_employee_email"`
	Department     string     `gorm:"type:varchar(80);not null"`
	ManagerID      *uuid.UUID `gorm:"type:uuid;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Employee) TableName() string { return "employees" }
