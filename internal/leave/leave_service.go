package leave

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-leave/internal/balance"
	balanceerrors "go-leave/internal/balance/errors"
	"go-leave/internal/employee"
	employeeerrors "go-leave/internal/employee/errors"
	"go-leave/internal/events"
	leaveerrors "go-leave/internal/leave/errors"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/shared/contextutil"
	"go-leave/internal/shared/counter"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	BalanceCacheKeyPrefix = "leave:balance:"
	balanceCacheTTL       = time.Hour
)

func GetBalanceCacheKey(employeeID string) string {
	return BalanceCacheKeyPrefix + employeeID
}

//go:generate mockgen -source=leave_service.go -destination=mock/leave_service_mock.go -package=mock
type Service interface {
	Apply(ctx context.Context, req ApplyLeaveRequest) (LeaveResponse, error)
	Decide(ctx context.Context, leaveID, managerID string, req DecideLeaveRequest) (LeaveResponse, error)
	Cancel(ctx context.Context, leaveID, employeeID string) (LeaveResponse, error)
	GetByEmployee(ctx context.Context, employeeID string) ([]LeaveResponse, error)
	GetByManager(ctx context.Context, managerID string) ([]LeaveResponse, error)
	GetBalance(ctx context.Context, employeeID string) (BalanceResponse, error)
}

type service struct {
	db          *sql.DB
	repo        Repository
	directory   employee.Repository
	balanceRepo balance.Repository
	counter     counter.Repository
	outbox      kafka.OutboxRepository
	rdb         *redis.Client
	sf          *singleflight.Group
	logger      *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	directory employee.Repository,
	balanceRepo balance.Repository,
	counterRepo counter.Repository,
	logger ...*zap.Logger,
) Service {
	return NewServiceWithOutbox(db, repo, directory, balanceRepo, counterRepo, nil, nil, logger...)
}

func NewServiceWithOutbox(
	db *sql.DB,
	repo Repository,
	directory employee.Repository,
	balanceRepo balance.Repository,
	counterRepo counter.Repository,
	outboxRepo kafka.OutboxRepository,
	rdb *redis.Client,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("leave.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("leave.service")
	}
	return &service{
		db:          db,
		repo:        repo,
		directory:   directory,
		balanceRepo: balanceRepo,
		counter:     counterRepo,
		outbox:      outboxRepo,
		rdb:         rdb,
		sf:          &singleflight.Group{},
		logger:      l,
	}
}

// Apply validates the request against the employee's current ledger and
// records a PENDING leave. The ledger is not debited here; days are only
// reserved once a manager approves.
func (s *service) Apply(ctx context.Context, req ApplyLeaveRequest) (LeaveResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("apply leave requested",
		zap.String("request_id", rid),
		zap.String("employee_id", req.EmployeeID),
		zap.String("leave_type", req.LeaveType),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
	)

	employeeID, err := uuid.Parse(req.EmployeeID)
	if err != nil {
		return LeaveResponse{}, leaveerrors.ErrInvalidEmployeeID
	}
	category, err := balance.ParseCategory(req.LeaveType)
	if err != nil {
		return LeaveResponse{}, err
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return LeaveResponse{}, err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return LeaveResponse{}, err
	}

	today := dateOnly(time.Now())
	if err := validateDates(startDate, endDate, today); err != nil {
		s.logger.Warn("apply leave date validation failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	days := leaveDays(startDate, endDate)

	empl, err := s.directory.FindByID(ctx, employeeID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, employeeerrors.ErrEmployeeNotFound
		}
		s.logger.Error("apply leave employee lookup failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	year := today.Year()
	ledger, err := s.balanceRepo.FindByEmployee(ctx, employeeID.String(), year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, balanceerrors.ErrBalanceNotFound
		}
		s.logger.Error("apply leave balance lookup failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if err := ledger.CheckSufficient(category, days); err != nil {
		s.logger.Warn("apply leave insufficient balance",
			zap.String("employee_id", req.EmployeeID),
			zap.String("leave_type", req.LeaveType),
			zap.Int("requested", days),
			zap.Int("available", ledger.Available(category)),
		)
		return LeaveResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("apply leave begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	nextVal, err := s.counter.GetNextValue(ctx, "leave_request_number")
	if err != nil {
		s.logger.Error("apply leave generate request number failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	l := &Leave{
		ID:            uuid.New(),
		RequestNumber: fmt.Sprintf("LV-%06d", nextVal),
		EmployeeID:    employeeID,
		LeaveType:     category,
		StartDate:     startDate,
		EndDate:       endDate,
		NumberOfDays:  days,
		Reason:        req.Reason,
		Status:        StatusPending,
		AppliedDate:   today,
	}

	if err := s.repo.WithTx(tx).Create(ctx, l); err != nil {
		s.logger.Error("apply leave persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("apply leave commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	s.logger.Info("apply leave success",
		zap.String("request_id", rid),
		zap.String("leave_id", l.ID.String()),
		zap.String("request_number", l.RequestNumber),
		zap.Int("number_of_days", days),
	)

	l.Employee = &EmployeeRef{
		ID:        empl.ID,
		FullName:  empl.FullName,
		Email:     empl.Email,
		ManagerID: empl.ManagerID,
	}
	return mapToResponse(*l), nil
}

// Decide approves or rejects a pending leave. Approval re-checks and debits
// the ledger inside the same transaction as the status flip, so the status
// and the counters change together or not at all.
func (s *service) Decide(ctx context.Context, leaveID, managerID string, req DecideLeaveRequest) (LeaveResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("decide leave requested",
		zap.String("request_id", rid),
		zap.String("leave_id", leaveID),
		zap.String("manager_id", managerID),
		zap.String("decision", req.Decision),
	)

	if _, err := uuid.Parse(leaveID); err != nil {
		return LeaveResponse{}, leaveerrors.ErrInvalidLeaveID
	}
	managerUUID, err := uuid.Parse(managerID)
	if err != nil {
		return LeaveResponse{}, leaveerrors.ErrInvalidManagerID
	}

	l, err := s.repo.FindByID(ctx, leaveID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, leaveerrors.ErrLeaveNotFound
		}
		s.logger.Error("decide leave lookup failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !isAllowedStatusTransition(l.Status, req.Decision) {
		s.logger.Warn("decide leave invalid transition",
			zap.String("leave_id", leaveID),
			zap.String("from_status", l.Status),
			zap.String("to_status", req.Decision),
		)
		return LeaveResponse{}, leaveerrors.ErrLeaveAlreadyProcessed
	}

	year := dateOnly(time.Now()).Year()
	if req.Decision == StatusApproved {
		// Mandatory re-check: other approvals may have drained the ledger
		// since this request was applied for.
		ledger, err := s.balanceRepo.FindByEmployee(ctx, l.EmployeeID.String(), year)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return LeaveResponse{}, balanceerrors.ErrBalanceNotFound
			}
			s.logger.Error("decide leave balance lookup failed", zap.Error(err))
			return LeaveResponse{}, err
		}
		if err := ledger.CheckSufficient(l.LeaveType, l.NumberOfDays); err != nil {
			return LeaveResponse{}, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("decide leave begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	decidedAt := time.Now().UTC()
	approvedBy := managerUUID.String()
	var comments *string
	if req.Comments != "" {
		comments = &req.Comments
	}

	ok, err := s.repo.WithTx(tx).TransitionFromPending(ctx, leaveID, req.Decision, &approvedBy, comments, decidedAt)
	if err != nil {
		s.logger.Error("decide leave status update failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		// Lost the race against another decision or a cancellation.
		return LeaveResponse{}, leaveerrors.ErrLeaveAlreadyProcessed
	}

	if req.Decision == StatusApproved {
		debited, err := s.balanceRepo.WithTx(tx).Debit(ctx, l.EmployeeID.String(), year, l.LeaveType, l.NumberOfDays)
		if err != nil {
			s.logger.Error("decide leave debit failed", zap.Error(err))
			return LeaveResponse{}, err
		}
		if !debited {
			// A concurrent approval spent the days first; the deferred
			// rollback undoes the status flip.
			available := 0
			if fresh, ferr := s.balanceRepo.FindByEmployee(ctx, l.EmployeeID.String(), year); ferr == nil {
				available = fresh.Available(l.LeaveType)
			}
			s.logger.Warn("decide leave overdraft prevented",
				zap.String("leave_id", leaveID),
				zap.String("leave_type", l.LeaveType.String()),
				zap.Int("requested", l.NumberOfDays),
				zap.Int("available", available),
			)
			return LeaveResponse{}, balanceerrors.InsufficientBalance(l.LeaveType.String(), available, l.NumberOfDays)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("decide leave commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	l.Status = req.Decision
	l.ApprovedBy = &managerUUID
	l.Comments = comments
	l.DecidedAt = &decidedAt

	s.logger.Info("decide leave success",
		zap.String("request_id", rid),
		zap.String("leave_id", leaveID),
		zap.String("status", l.Status),
	)

	if req.Decision == StatusApproved {
		s.invalidateBalanceCache(ctx, l.EmployeeID.String())
	}
	s.enqueueStatusNotification(ctx, l)

	return mapToResponse(*l), nil
}

// Cancel withdraws the caller's own pending leave. The ledger is never
// touched: pending leaves were never debited.
func (s *service) Cancel(ctx context.Context, leaveID, employeeID string) (LeaveResponse, error) {
	s.logger.Debug("cancel leave requested",
		zap.String("leave_id", leaveID),
		zap.String("employee_id", employeeID),
	)

	if _, err := uuid.Parse(leaveID); err != nil {
		return LeaveResponse{}, leaveerrors.ErrInvalidLeaveID
	}
	actorUUID, err := uuid.Parse(employeeID)
	if err != nil {
		return LeaveResponse{}, leaveerrors.ErrInvalidEmployeeID
	}

	l, err := s.repo.FindByID(ctx, leaveID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, leaveerrors.ErrLeaveNotFound
		}
		s.logger.Error("cancel leave lookup failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if l.EmployeeID != actorUUID {
		s.logger.Warn("cancel leave by non-owner",
			zap.String("leave_id", leaveID),
			zap.String("owner_id", l.EmployeeID.String()),
			zap.String("actor_id", employeeID),
		)
		return LeaveResponse{}, leaveerrors.ErrNotLeaveOwner
	}
	if !isAllowedStatusTransition(l.Status, StatusCanceled) {
		return LeaveResponse{}, leaveerrors.ErrLeaveAlreadyProcessed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("cancel leave begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	decidedAt := time.Now().UTC()
	ok, err := s.repo.WithTx(tx).TransitionFromPending(ctx, leaveID, StatusCanceled, nil, nil, decidedAt)
	if err != nil {
		s.logger.Error("cancel leave status update failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		return LeaveResponse{}, leaveerrors.ErrLeaveAlreadyProcessed
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("cancel leave commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	l.Status = StatusCanceled
	l.ApprovedBy = nil
	l.Comments = nil
	l.DecidedAt = &decidedAt

	s.logger.Info("cancel leave success", zap.String("leave_id", leaveID))

	return mapToResponse(*l), nil
}

func (s *service) GetByEmployee(ctx context.Context, employeeID string) ([]LeaveResponse, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return nil, leaveerrors.ErrInvalidEmployeeID
	}

	leaves, err := s.repo.FindByEmployee(ctx, employeeID)
	if err != nil {
		s.logger.Error("get leaves by employee failed", zap.Error(err))
		return nil, err
	}
	return mapToListResponse(leaves), nil
}

func (s *service) GetByManager(ctx context.Context, managerID string) ([]LeaveResponse, error) {
	if _, err := uuid.Parse(managerID); err != nil {
		return nil, leaveerrors.ErrInvalidManagerID
	}

	leaves, err := s.repo.FindByManager(ctx, managerID)
	if err != nil {
		s.logger.Error("get leaves by manager failed", zap.Error(err))
		return nil, err
	}
	return mapToListResponse(leaves), nil
}

func (s *service) GetBalance(ctx context.Context, employeeID string) (BalanceResponse, error) {
	if _, err := uuid.Parse(employeeID); err != nil {
		return BalanceResponse{}, leaveerrors.ErrInvalidEmployeeID
	}

	if _, err := s.directory.FindByID(ctx, employeeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BalanceResponse{}, employeeerrors.ErrEmployeeNotFound
		}
		s.logger.Error("get balance employee lookup failed", zap.Error(err))
		return BalanceResponse{}, err
	}

	cacheKey := GetBalanceCacheKey(employeeID)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var resp BalanceResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return resp, nil
			}
		}
	}

	v, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		year := dateOnly(time.Now()).Year()
		ledger, err := s.balanceRepo.FindByEmployee(ctx, employeeID, year)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return BalanceResponse{}, balanceerrors.ErrBalanceNotFound
			}
			return BalanceResponse{}, err
		}

		resp := BalanceResponse{
			EmployeeID: employeeID,
			Year:       ledger.Year,
			SickDays:   ledger.SickDays,
			CasualDays: ledger.CasualDays,
			EarnedDays: ledger.EarnedDays,
		}

		if s.rdb != nil {
			if jsonData, err := json.Marshal(resp); err == nil {
				s.rdb.Set(ctx, cacheKey, jsonData, balanceCacheTTL)
			}
		}

		return resp, nil
	})

	if err != nil {
		return BalanceResponse{}, err
	}

	return v.(BalanceResponse), nil
}

func (s *service) invalidateBalanceCache(ctx context.Context, employeeID string) {
	if s.rdb == nil {
		return
	}
	cacheKey := GetBalanceCacheKey(employeeID)
	if err := s.rdb.Del(ctx, cacheKey).Err(); err != nil {
		s.logger.Error("invalidate balance cache failed",
			zap.String("key", cacheKey),
			zap.Error(err),
		)
	}
}

// enqueueStatusNotification records the decision for the notifier pipeline.
// Strictly best effort: the decision is already committed, so failures here
// are logged and never returned to the caller.
func (s *service) enqueueStatusNotification(ctx context.Context, l *Leave) {
	if s.outbox == nil {
		return
	}

	email := ""
	if l.Employee != nil {
		email = l.Employee.Email
	}

	var comments string
	if l.Comments != nil {
		comments = *l.Comments
	}
	event := events.LeaveStatusChangedEvent{
		EventType:     "leave_status_changed",
		RequestID:     contextutil.GetRequestID(ctx),
		LeaveID:       l.ID.String(),
		EmployeeID:    l.EmployeeID.String(),
		EmployeeEmail: email,
		LeaveType:     l.LeaveType.String(),
		Status:        l.Status,
		NumberOfDays:  l.NumberOfDays,
		Comments:      comments,
		OccurredAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal leave status event failed", zap.Error(err))
		return
	}

	if err := s.outbox.Create(ctx, kafka.OutboxEvent{
		ID:            uuid.NewString(),
		RequestID:     event.RequestID,
		AggregateType: "leave",
		AggregateID:   l.ID.String(),
		EventType:     event.EventType,
		Topic:         events.LeaveStatusChangedTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		s.logger.Error("enqueue leave status notification failed",
			zap.String("leave_id", l.ID.String()),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("leave status notification queued",
		zap.String("leave_id", l.ID.String()),
		zap.String("status", l.Status),
	)
}

func mapToResponse(l Leave) LeaveResponse {
	resp := LeaveResponse{
		ID:            l.ID.String(),
		RequestNumber: l.RequestNumber,
		EmployeeID:    l.EmployeeID.String(),
		LeaveType:     l.LeaveType.String(),
		StartDate:     l.StartDate.Format(dateLayout),
		EndDate:       l.EndDate.Format(dateLayout),
		NumberOfDays:  l.NumberOfDays,
		Reason:        l.Reason,
		Status:        l.Status,
		AppliedDate:   l.AppliedDate.Format(dateLayout),
	}
	if l.Employee != nil {
		resp.EmployeeName = l.Employee.FullName
	}
	if l.ApprovedBy != nil {
		v := l.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	resp.Comments = l.Comments
	if l.DecidedAt != nil {
		v := l.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &v
	}
	return resp
}

func mapToListResponse(leaves []Leave) []LeaveResponse {
	resp := make([]LeaveResponse, len(leaves))
	for i, l := range leaves {
		resp[i] = mapToResponse(l)
	}
	return resp
}
