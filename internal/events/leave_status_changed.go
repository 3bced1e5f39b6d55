package events

import "time"

const LeaveStatusChangedTopic = "hr.leave.status.v1"

// LeaveStatusChangedEvent is emitted after a leave request reaches a
// decision. The notifier consumer turns it into an employee notification.
type LeaveStatusChangedEvent struct {
	EventType     string    `json:"event_type"`
	RequestID     string    `json:"request_id,omitempty"`
	LeaveID       string    `json:"leave_id"`
	EmployeeID    string    `json:"employee_id"`
	EmployeeEmail string    `json:"employee_email"`
	LeaveType     string    `json:"leave_type"`
	Status        string    `json:"status"`
	NumberOfDays  int       `json:"number_of_days"`
	Comments      string    `json:"comments,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
