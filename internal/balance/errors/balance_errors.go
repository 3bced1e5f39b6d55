package balanceerrors

import (
	"net/http"

	"go-leave/internal/shared/apperror"
)

var (
	ErrBalanceNotFound = apperror.New(
		apperror.CodeNotFound,
		"leave balance not found for employee",
		http.StatusNotFound,
	)
	ErrInvalidLeaveType = apperror.New(
		apperror.CodeInvalidInput,
		"invalid leave type, expected SICK, CASUAL or EARNED",
		http.StatusBadRequest,
	)
)

// InsufficientBalance reports a balance check failure with the figures the
// caller needs to correct the request.
func InsufficientBalance(category string, available, requested int) *apperror.AppError {
	return apperror.Newf(
		apperror.CodeInsufficientBalance,
		http.StatusUnprocessableEntity,
		"insufficient %s leave balance: available %d, requested %d",
		category, available, requested,
	)
}
