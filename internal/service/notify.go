package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetops/tripshare-api/pkg/config"
	"github.com/fleetops/tripshare-api/pkg/jobs"
)

// NotificationCategory selects the template a delivery uses.
type NotificationCategory string

const (
	NotifyManagerConfirmation NotificationCategory = "manager_confirmation_request"
	NotifyApprovalResult      NotificationCategory = "approval_result"
	NotifyProposalResult      NotificationCategory = "optimization_proposal_result"
	NotifyReminder            NotificationCategory = "reminder"
)

// Notification is a pending delivery handed to the external transport.
type Notification struct {
	Category   NotificationCategory
	Recipients []string
	Data       map[string]interface{}
}

// Notifier delivers notifications. The transport (email provider) is
// owned by the surrounding system; delivery failure must never fail a
// workflow transition.
type Notifier interface {
	Send(ctx context.Context, n Notification) (bool, error)
}

// ManagerDirectory resolves a submitter's confirmed manager. An empty
// email means no manager is on file, which triggers auto-approval.
type ManagerDirectory interface {
	ManagerEmail(ctx context.Context, userID string) (string, error)
}

// NotifyDispatcher pushes notifications through the background queue
// so slow or failing transports never block a workflow transition.
type NotifyDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotifyDispatcher builds a dispatcher backed by a worker queue.
func NewNotifyDispatcher(notifier Notifier, cfg config.NotificationsConfig, logger *zap.Logger) *NotifyDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		n, ok := job.Payload.(Notification)
		if !ok {
			logger.Warn("notification job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		delivered, err := notifier.Send(ctx, n)
		if err != nil {
			return err
		}
		if !delivered {
			logger.Warn("notification not delivered",
				zap.String("category", string(n.Category)),
				zap.Strings("recipients", n.Recipients))
		}
		return nil
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return &NotifyDispatcher{queue: queue, logger: logger}
}

// Start begins dispatching.
func (d *NotifyDispatcher) Start(ctx context.Context) { d.queue.Start(ctx) }

// Stop drains the workers.
func (d *NotifyDispatcher) Stop() { d.queue.Stop() }

// Dispatch enqueues a notification. Failures are logged only.
func (d *NotifyDispatcher) Dispatch(n Notification) {
	if len(n.Recipients) == 0 {
		return
	}
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(n.Category),
		Payload: n,
	})
	if err != nil {
		d.logger.Warn("failed to enqueue notification",
			zap.String("category", string(n.Category)), zap.Error(err))
	}
}

// LogNotifier is the default transport used when no email provider is
// wired; it records the delivery intent and reports success.
type LogNotifier struct {
	Logger *zap.Logger
}

// Send implements Notifier.
func (l *LogNotifier) Send(_ context.Context, n Notification) (bool, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("category", string(n.Category)),
		zap.Strings("recipients", n.Recipients))
	return true, nil
}
