package consumer

import (
	"context"
	"fmt"

	"go-leave/internal/events"

	"go.uber.org/zap"
)

// LogEmailNotifier writes the notification that a real mail integration
// would send. Swapping in an SMTP or provider client only requires another
// Notifier implementation.
type LogEmailNotifier struct {
	logger *zap.Logger
}

func NewLogEmailNotifier(logger *zap.Logger) *LogEmailNotifier {
	return &LogEmailNotifier{logger: logger.Named("notifier.email")}
}

func (n *LogEmailNotifier) NotifyLeaveStatus(ctx context.Context, event events.LeaveStatusChangedEvent) error {
	subject := fmt.Sprintf("Your %s leave request is %s", event.LeaveType, event.Status)

	n.logger.Info("sending leave status email",
		zap.String("to", event.EmployeeEmail),
		zap.String("subject", subject),
		zap.String("leave_id", event.LeaveID),
		zap.Int("number_of_days", event.NumberOfDays),
		zap.String("comments", event.Comments),
	)
	return nil
}
