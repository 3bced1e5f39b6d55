package leave_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go-leave/internal/balance"
	balanceerrors "go-leave/internal/balance/errors"
	"go-leave/internal/employee"
	employeeerrors "go-leave/internal/employee/errors"
	"go-leave/internal/events"
	"go-leave/internal/leave"
	leaveerrors "go-leave/internal/leave/errors"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/shared/apperror"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type fakeLeaveRepository struct {
	withTxFn                func(tx *sql.Tx) leave.Repository
	createFn                func(ctx context.Context, l *leave.Leave) error
	findByIDFn              func(ctx context.Context, id string) (*leave.Leave, error)
	findByEmployeeFn        func(ctx context.Context, employeeID string) ([]leave.Leave, error)
	findByManagerFn         func(ctx context.Context, managerID string) ([]leave.Leave, error)
	transitionFromPendingFn func(ctx context.Context, id, targetStatus string, approvedBy *string, comments *string, decidedAt time.Time) (bool, error)
}

func (f *fakeLeaveRepository) WithTx(tx *sql.Tx) leave.Repository {
	if f.withTxFn != nil {
		return f.withTxFn(tx)
	}
	return f
}

func (f *fakeLeaveRepository) Create(ctx context.Context, l *leave.Leave) error {
	if f.createFn != nil {
		return f.createFn(ctx, l)
	}
	return nil
}

func (f *fakeLeaveRepository) FindByID(ctx context.Context, id string) (*leave.Leave, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLeaveRepository) FindByEmployee(ctx context.Context, employeeID string) ([]leave.Leave, error) {
	if f.findByEmployeeFn != nil {
		return f.findByEmployeeFn(ctx, employeeID)
	}
	return nil, nil
}

func (f *fakeLeaveRepository) FindByManager(ctx context.Context, managerID string) ([]leave.Leave, error) {
	if f.findByManagerFn != nil {
		return f.findByManagerFn(ctx, managerID)
	}
	return nil, nil
}

func (f *fakeLeaveRepository) TransitionFromPending(ctx context.Context, id, targetStatus string, approvedBy *string, comments *string, decidedAt time.Time) (bool, error) {
	if f.transitionFromPendingFn != nil {
		return f.transitionFromPendingFn(ctx, id, targetStatus, approvedBy, comments, decidedAt)
	}
	return true, nil
}

type fakeEmployeeDirectory struct {
	findByIDFn func(ctx context.Context, id string) (*employee.Employee, error)
}

func (f *fakeEmployeeDirectory) WithTx(tx *sql.Tx) employee.Repository { return f }

func (f *fakeEmployeeDirectory) Create(ctx context.Context, e *employee.Employee) error { return nil }

func (f *fakeEmployeeDirectory) FindAll(ctx context.Context) ([]employee.Employee, error) {
	return nil, nil
}

func (f *fakeEmployeeDirectory) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeEmployeeDirectory) ExistsByID(ctx context.Context, id string) (bool, error) {
	return f.findByIDFn != nil, nil
}

type fakeBalanceRepository struct {
	createFn         func(ctx context.Context, b *balance.LeaveBalance) error
	findByEmployeeFn func(ctx context.Context, employeeID string, year int) (*balance.LeaveBalance, error)
	debitFn          func(ctx context.Context, employeeID string, year int, cat balance.Category, days int) (bool, error)
}

func (f *fakeBalanceRepository) WithTx(tx *sql.Tx) balance.Repository { return f }

func (f *fakeBalanceRepository) Create(ctx context.Context, b *balance.LeaveBalance) error {
	if f.createFn != nil {
		return f.createFn(ctx, b)
	}
	return nil
}

func (f *fakeBalanceRepository) FindByEmployee(ctx context.Context, employeeID string, year int) (*balance.LeaveBalance, error) {
	if f.findByEmployeeFn != nil {
		return f.findByEmployeeFn(ctx, employeeID, year)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBalanceRepository) Debit(ctx context.Context, employeeID string, year int, cat balance.Category, days int) (bool, error) {
	if f.debitFn != nil {
		return f.debitFn(ctx, employeeID, year, cat, days)
	}
	return true, nil
}

type fakeCounterRepository struct {
	getNextValueFn func(ctx context.Context, counterType string) (int64, error)
}

func (f *fakeCounterRepository) GetNextValue(ctx context.Context, counterType string) (int64, error) {
	if f.getNextValueFn != nil {
		return f.getNextValueFn(ctx, counterType)
	}
	return 7, nil
}

type fakeOutboxRepository struct {
	createFn func(ctx context.Context, event kafka.OutboxEvent) error
}

func (f *fakeOutboxRepository) WithTx(tx *sql.Tx) kafka.OutboxRepository { return f }

func (f *fakeOutboxRepository) Create(ctx context.Context, event kafka.OutboxEvent) error {
	if f.createFn != nil {
		return f.createFn(ctx, event)
	}
	return nil
}

func (f *fakeOutboxRepository) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepository) MarkSent(ctx context.Context, id string) error { return nil }

func (f *fakeOutboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return nil
}

type leaveServiceDeps struct {
	db          *sql.DB
	sqlMock     sqlmock.Sqlmock
	service     leave.Service
	repo        *fakeLeaveRepository
	directory   *fakeEmployeeDirectory
	balanceRepo *fakeBalanceRepository
	counter     *fakeCounterRepository
	outbox      *fakeOutboxRepository
}

func setupLeaveServiceTest(t *testing.T) *leaveServiceDeps {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	assert.NoError(t, err)

	repo := &fakeLeaveRepository{}
	directory := &fakeEmployeeDirectory{}
	balanceRepo := &fakeBalanceRepository{}
	counterRepo := &fakeCounterRepository{}
	outbox := &fakeOutboxRepository{}
	svc := leave.NewServiceWithOutbox(db, repo, directory, balanceRepo, counterRepo, outbox, nil)

	return &leaveServiceDeps{
		db:          db,
		sqlMock:     sqlMock,
		service:     svc,
		repo:        repo,
		directory:   directory,
		balanceRepo: balanceRepo,
		counter:     counterRepo,
		outbox:      outbox,
	}
}

func expectTx(t *testing.T, mock sqlmock.Sqlmock, commit bool) {
	t.Helper()
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func directoryWith(empl *employee.Employee) *fakeEmployeeDirectory {
	return &fakeEmployeeDirectory{
		findByIDFn: func(ctx context.Context, id string) (*employee.Employee, error) {
			if id == empl.ID.String() {
				return empl, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
	}
}

func appCode(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func TestLeaveService_Apply(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()
	managerID := uuid.New()
	empl := &employee.Employee{
		ID:             employeeID,
		EmployeeNumber: "EMP-000001",
		FullName:       "Dewi Lestari",
		Email:          "dewi@example.com",
		Department:     "Engineering",
		ManagerID:      &managerID,
	}

	t.Run("success", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)
		deps.directory.findByIDFn = directoryWith(empl).findByIDFn
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			assert.Equal(t, employeeID.String(), eid)
			assert.Equal(t, time.Now().Year(), year)
			return balance.NewDefault(employeeID, year), nil
		}

		debited := false
		deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
			debited = true
			return true, nil
		}

		deps.repo.createFn = func(ctx context.Context, l *leave.Leave) error {
			assert.Equal(t, employeeID, l.EmployeeID)
			assert.Equal(t, "LV-000007", l.RequestNumber)
			assert.Equal(t, balance.CategoryCasual, l.LeaveType)
			assert.Equal(t, 3, l.NumberOfDays)
			assert.Equal(t, leave.StatusPending, l.Status)
			return nil
		}

		resp, err := deps.service.Apply(ctx, leave.ApplyLeaveRequest{
			EmployeeID: employeeID.String(),
			LeaveType:  "CASUAL",
			StartDate:  futureDate(10),
			EndDate:    futureDate(12),
			Reason:     "attending a family wedding",
		})

		assert.NoError(t, err)
		assert.Equal(t, "LV-000007", resp.RequestNumber)
		assert.Equal(t, leave.StatusPending, resp.Status)
		assert.Equal(t, 3, resp.NumberOfDays)
		assert.Equal(t, "Dewi Lestari", resp.EmployeeName)
		assert.False(t, debited, "applying must not touch the ledger")
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative insufficient balance", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		deps.directory.findByIDFn = directoryWith(empl).findByIDFn
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			return balance.NewDefault(employeeID, year), nil
		}

		created := false
		deps.repo.createFn = func(ctx context.Context, l *leave.Leave) error {
			created = true
			return nil
		}

		_, err := deps.service.Apply(ctx, leave.ApplyLeaveRequest{
			EmployeeID: employeeID.String(),
			LeaveType:  "CASUAL",
			StartDate:  futureDate(10),
			EndDate:    futureDate(24), // 15 days against a 12 day allotment
			Reason:     "extended trip across the archipelago",
		})

		assert.Error(t, err)
		assert.Equal(t, apperror.CodeInsufficientBalance, appCode(err))
		assert.Contains(t, err.Error(), "available 12, requested 15")
		assert.False(t, created)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative start date in the past", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.Apply(ctx, leave.ApplyLeaveRequest{
			EmployeeID: employeeID.String(),
			LeaveType:  "SICK",
			StartDate:  futureDate(-2),
			EndDate:    futureDate(1),
			Reason:     "caught a nasty seasonal flu",
		})

		assert.ErrorIs(t, err, leaveerrors.ErrPastStartDate)
	})

	t.Run("negative end before start", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.Apply(ctx, leave.ApplyLeaveRequest{
			EmployeeID: employeeID.String(),
			LeaveType:  "SICK",
			StartDate:  futureDate(5),
			EndDate:    futureDate(3),
			Reason:     "caught a nasty seasonal flu",
		})

		assert.ErrorIs(t, err, leaveerrors.ErrInvalidDateRange)
	})

	t.Run("negative unknown employee", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.Apply(ctx, leave.ApplyLeaveRequest{
			EmployeeID: uuid.NewString(),
			LeaveType:  "EARNED",
			StartDate:  futureDate(5),
			EndDate:    futureDate(6),
			Reason:     "long planned vacation abroad",
		})

		assert.ErrorIs(t, err, employeeerrors.ErrEmployeeNotFound)
	})
}

func pendingLeave(employeeID uuid.UUID, days int) *leave.Leave {
	start := time.Now().AddDate(0, 0, 10)
	return &leave.Leave{
		ID:            uuid.New(),
		RequestNumber: "LV-000042",
		EmployeeID:    employeeID,
		Employee: &leave.EmployeeRef{
			ID:       employeeID,
			FullName: "Dewi Lestari",
			Email:    "dewi@example.com",
		},
		LeaveType:    balance.CategoryCasual,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, days-1),
		NumberOfDays: days,
		Reason:       "attending a family wedding",
		Status:       leave.StatusPending,
		AppliedDate:  time.Now(),
	}
}

func TestLeaveService_Decide(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()
	managerID := uuid.New()

	t.Run("success approve debits ledger and notifies", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)
		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			assert.Equal(t, l.ID.String(), id)
			return l, nil
		}
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			return balance.NewDefault(employeeID, year), nil
		}

		debited := false
		deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
			debited = true
			assert.Equal(t, employeeID.String(), eid)
			assert.Equal(t, balance.CategoryCasual, cat)
			assert.Equal(t, 3, days)
			return true, nil
		}

		var published *kafka.OutboxEvent
		deps.outbox.createFn = func(ctx context.Context, event kafka.OutboxEvent) error {
			published = &event
			return nil
		}

		resp, err := deps.service.Decide(ctx, l.ID.String(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusApproved,
			Comments: "enjoy the wedding",
		})

		assert.NoError(t, err)
		assert.Equal(t, leave.StatusApproved, resp.Status)
		assert.NotNil(t, resp.ApprovedBy)
		assert.Equal(t, managerID.String(), *resp.ApprovedBy)
		assert.True(t, debited)

		assert.NotNil(t, published)
		assert.Equal(t, events.LeaveStatusChangedTopic, published.Topic)
		var event events.LeaveStatusChangedEvent
		assert.NoError(t, json.Unmarshal(published.Payload, &event))
		assert.Equal(t, leave.StatusApproved, event.Status)
		assert.Equal(t, "dewi@example.com", event.EmployeeEmail)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("success reject leaves ledger alone", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)
		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}

		debited := false
		deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
			debited = true
			return true, nil
		}

		resp, err := deps.service.Decide(ctx, l.ID.String(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusRejected,
			Comments: "team is at capacity that week",
		})

		assert.NoError(t, err)
		assert.Equal(t, leave.StatusRejected, resp.Status)
		assert.False(t, debited)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative already decided", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		l := pendingLeave(employeeID, 3)
		l.Status = leave.StatusRejected
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}

		_, err := deps.service.Decide(ctx, l.ID.String(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusApproved,
		})

		assert.ErrorIs(t, err, leaveerrors.ErrLeaveAlreadyProcessed)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative lost the race to another decision", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, false)
		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			return balance.NewDefault(employeeID, year), nil
		}
		deps.repo.transitionFromPendingFn = func(ctx context.Context, id, targetStatus string, approvedBy *string, comments *string, decidedAt time.Time) (bool, error) {
			return false, nil
		}

		_, err := deps.service.Decide(ctx, l.ID.String(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusApproved,
		})

		assert.ErrorIs(t, err, leaveerrors.ErrLeaveAlreadyProcessed)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative ledger drained before debit", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, false)
		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}

		// Pre-check sees enough days, the guarded debit does not: another
		// approval spent them in between.
		drained := balance.NewDefault(employeeID, time.Now().Year())
		drained.CasualDays = 2
		calls := 0
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			calls++
			if calls == 1 {
				return balance.NewDefault(employeeID, year), nil
			}
			return drained, nil
		}
		deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
			return false, nil
		}

		_, err := deps.service.Decide(ctx, l.ID.String(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusApproved,
		})

		assert.Error(t, err)
		assert.Equal(t, apperror.CodeInsufficientBalance, appCode(err))
		assert.Contains(t, err.Error(), "available 2, requested 3")
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative leave not found", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.Decide(ctx, uuid.NewString(), managerID.String(), leave.DecideLeaveRequest{
			Decision: leave.StatusApproved,
		})

		assert.ErrorIs(t, err, leaveerrors.ErrLeaveNotFound)
	})
}

func TestLeaveService_Cancel(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()

	t.Run("success", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)
		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}
		deps.repo.transitionFromPendingFn = func(ctx context.Context, id, targetStatus string, approvedBy *string, comments *string, decidedAt time.Time) (bool, error) {
			assert.Equal(t, leave.StatusCanceled, targetStatus)
			assert.Nil(t, approvedBy)
			return true, nil
		}

		ledgerCalls := 0
		deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
			ledgerCalls++
			return true, nil
		}
		deps.balanceRepo.createFn = func(ctx context.Context, b *balance.LeaveBalance) error {
			ledgerCalls++
			return nil
		}

		resp, err := deps.service.Cancel(ctx, l.ID.String(), employeeID.String())

		assert.NoError(t, err)
		assert.Equal(t, leave.StatusCanceled, resp.Status)
		assert.Nil(t, resp.ApprovedBy)
		assert.Equal(t, 0, ledgerCalls, "cancelling never touches the ledger")
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative not the owner", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		l := pendingLeave(employeeID, 3)
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}

		_, err := deps.service.Cancel(ctx, l.ID.String(), uuid.NewString())

		assert.ErrorIs(t, err, leaveerrors.ErrNotLeaveOwner)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative already approved", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		l := pendingLeave(employeeID, 3)
		l.Status = leave.StatusApproved
		deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
			return l, nil
		}

		_, err := deps.service.Cancel(ctx, l.ID.String(), employeeID.String())

		assert.ErrorIs(t, err, leaveerrors.ErrLeaveAlreadyProcessed)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})
}

func TestLeaveService_Queries(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()
	managerID := uuid.New()

	t.Run("success by employee", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByEmployeeFn = func(ctx context.Context, eid string) ([]leave.Leave, error) {
			assert.Equal(t, employeeID.String(), eid)
			return []leave.Leave{*pendingLeave(employeeID, 2)}, nil
		}

		resp, err := deps.service.GetByEmployee(ctx, employeeID.String())

		assert.NoError(t, err)
		assert.Len(t, resp, 1)
		assert.Equal(t, 2, resp[0].NumberOfDays)
	})

	t.Run("success by manager", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		deps.repo.findByManagerFn = func(ctx context.Context, mid string) ([]leave.Leave, error) {
			assert.Equal(t, managerID.String(), mid)
			return []leave.Leave{*pendingLeave(employeeID, 2), *pendingLeave(uuid.New(), 5)}, nil
		}

		resp, err := deps.service.GetByManager(ctx, managerID.String())

		assert.NoError(t, err)
		assert.Len(t, resp, 2)
	})

	t.Run("negative malformed employee id", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.GetByEmployee(ctx, "not-a-uuid")

		assert.ErrorIs(t, err, leaveerrors.ErrInvalidEmployeeID)
	})
}

func TestLeaveService_GetBalance(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()
	empl := &employee.Employee{ID: employeeID, FullName: "Dewi Lestari", Email: "dewi@example.com"}

	t.Run("success without cache", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		deps.directory.findByIDFn = directoryWith(empl).findByIDFn
		deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
			b := balance.NewDefault(employeeID, year)
			b.CasualDays = 9
			return b, nil
		}

		resp, err := deps.service.GetBalance(ctx, employeeID.String())

		assert.NoError(t, err)
		assert.Equal(t, employeeID.String(), resp.EmployeeID)
		assert.Equal(t, balance.DefaultSickDays, resp.SickDays)
		assert.Equal(t, 9, resp.CasualDays)
		assert.Equal(t, balance.DefaultEarnedDays, resp.EarnedDays)
	})

	t.Run("success served from cache", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, redisMock := redismock.NewClientMock()
		cached := leave.BalanceResponse{
			EmployeeID: employeeID.String(),
			Year:       time.Now().Year(),
			SickDays:   4,
			CasualDays: 5,
			EarnedDays: 6,
		}
		payload, err := json.Marshal(cached)
		assert.NoError(t, err)
		redisMock.ExpectGet(leave.GetBalanceCacheKey(employeeID.String())).SetVal(string(payload))

		queried := false
		balanceRepo := &fakeBalanceRepository{
			findByEmployeeFn: func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
				queried = true
				return nil, gorm.ErrRecordNotFound
			},
		}
		svc := leave.NewServiceWithOutbox(db, &fakeLeaveRepository{}, directoryWith(empl), balanceRepo, &fakeCounterRepository{}, nil, rdb)

		resp, err := svc.GetBalance(ctx, employeeID.String())

		assert.NoError(t, err)
		assert.Equal(t, cached, resp)
		assert.False(t, queried, "a cache hit must not reach the database")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("success cache miss populates cache", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		year := time.Now().Year()
		fromDB := leave.BalanceResponse{
			EmployeeID: employeeID.String(),
			Year:       year,
			SickDays:   balance.DefaultSickDays,
			CasualDays: balance.DefaultCasualDays,
			EarnedDays: balance.DefaultEarnedDays,
		}
		payload, err := json.Marshal(fromDB)
		assert.NoError(t, err)

		rdb, redisMock := redismock.NewClientMock()
		key := leave.GetBalanceCacheKey(employeeID.String())
		redisMock.ExpectGet(key).RedisNil()
		redisMock.ExpectSet(key, payload, time.Hour).SetVal("OK")

		balanceRepo := &fakeBalanceRepository{
			findByEmployeeFn: func(ctx context.Context, eid string, y int) (*balance.LeaveBalance, error) {
				return balance.NewDefault(employeeID, y), nil
			},
		}
		svc := leave.NewServiceWithOutbox(db, &fakeLeaveRepository{}, directoryWith(empl), balanceRepo, &fakeCounterRepository{}, nil, rdb)

		resp, err := svc.GetBalance(ctx, employeeID.String())

		assert.NoError(t, err)
		assert.Equal(t, fromDB, resp)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("negative unknown employee", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.GetBalance(ctx, uuid.NewString())

		assert.ErrorIs(t, err, employeeerrors.ErrEmployeeNotFound)
	})

	t.Run("negative missing ledger", func(t *testing.T) {
		deps := setupLeaveServiceTest(t)
		defer deps.db.Close()

		deps.directory.findByIDFn = directoryWith(empl).findByIDFn

		_, err := deps.service.GetBalance(ctx, employeeID.String())

		assert.ErrorIs(t, err, balanceerrors.ErrBalanceNotFound)
	})
}

// Two approvals for the same employee race for the last days in the
// category. Exactly one may win; the combined debits never exceed the
// ledger.
func TestLeaveService_ConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	employeeID := uuid.New()
	managerID := uuid.New()

	deps := setupLeaveServiceTest(t)
	defer deps.db.Close()

	deps.sqlMock.MatchExpectationsInOrder(false)
	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectBegin()
	deps.sqlMock.ExpectCommit()
	deps.sqlMock.ExpectRollback()

	first := pendingLeave(employeeID, 7)
	second := pendingLeave(employeeID, 7)
	byID := map[string]*leave.Leave{
		first.ID.String():  first,
		second.ID.String(): second,
	}
	deps.repo.findByIDFn = func(ctx context.Context, id string) (*leave.Leave, error) {
		if l, ok := byID[id]; ok {
			return l, nil
		}
		return nil, gorm.ErrRecordNotFound
	}

	var mu sync.Mutex
	casualDays := 10
	deps.balanceRepo.findByEmployeeFn = func(ctx context.Context, eid string, year int) (*balance.LeaveBalance, error) {
		mu.Lock()
		defer mu.Unlock()
		b := balance.NewDefault(employeeID, year)
		b.CasualDays = casualDays
		return b, nil
	}
	deps.balanceRepo.debitFn = func(ctx context.Context, eid string, year int, cat balance.Category, days int) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if casualDays < days {
			return false, nil
		}
		casualDays -= days
		return true, nil
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{first.ID.String(), second.ID.String()} {
		wg.Add(1)
		go func(leaveID string) {
			defer wg.Done()
			_, err := deps.service.Decide(ctx, leaveID, managerID.String(), leave.DecideLeaveRequest{
				Decision: leave.StatusApproved,
			})
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	var failures []error
	for err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}
	assert.Len(t, failures, 1, "exactly one approval must lose")
	assert.Equal(t, apperror.CodeInsufficientBalance, appCode(failures[0]))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, casualDays, "the ledger never goes negative")
}
