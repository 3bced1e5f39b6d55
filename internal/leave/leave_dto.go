package leave

type ApplyLeaveRequest struct {
	EmployeeID string `json:"employee_id" binding:"required,uuid"`
	LeaveType  string `json:"leave_type" binding:"required,oneof=SICK CASUAL EARNED"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	Reason     string `json:"reason" binding:"required,min=10,max=500"`
}

type DecideLeaveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Comments string `json:"comments" binding:"max=500"`
}

type LeaveResponse struct {
	ID            string  `json:"id"`
	RequestNumber string  `json:"request_number"`
	EmployeeID    string  `json:"employee_id"`
	EmployeeName  string  `json:"employee_name,omitempty"`
	LeaveType     string  `json:"leave_type"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	NumberOfDays  int     `json:"number_of_days"`
	Reason        string  `json:"reason"`
	Status        string  `json:"status"`
	AppliedDate   string  `json:"applied_date"`
	ApprovedBy    *string `json:"approved_by,omitempty"`
	Comments      *string `json:"comments,omitempty"`
	DecidedAt     *string `json:"decided_at,omitempty"`
}

type BalanceResponse struct {
	EmployeeID string `json:"employee_id"`
	Year       int    `json:"year"`
	SickDays   int    `json:"sick_days"`
	CasualDays int    `json:"casual_days"`
	EarnedDays int    `json:"earned_days"`
}
