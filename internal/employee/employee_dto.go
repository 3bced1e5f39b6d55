package employee

type CreateEmployeeRequest struct {
	FullName   string  `json:"full_name" binding:"required,max=120"`
	Email      string  `json:"email" binding:"required,email"`
	Department string  `json:"department" binding:"required,max=80"`
	ManagerID  *string `json:"manager_id" binding:"omitempty,uuid"`
}

type EmployeeResponse struct {
	ID             string  `json:"id"`
	EmployeeNumber string  `json:"employee_number"`
	FullName       string  `json:"full_name"`
	Email          string  `json:"email"`
	Department     string  `json:"department"`
	ManagerID      *string `json:"manager_id,omitempty"`
}
