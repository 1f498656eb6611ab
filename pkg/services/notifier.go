package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Template key for the assignment notification.
const TemplateOpportunityAssigned = "opportunity_assigned"

// Notifier delivers assignment notifications. Delivery is best-effort:
// callers log failures and continue, so implementations should return an
// error rather than panic and should respect the context deadline.
type Notifier interface {
	// Send delivers one templated notification to an assignee. The boolean
	// reports whether delivery actually happened.
	Send(ctx context.Context, assigneeID uuid.UUID, templateKey string, fields map[string]string) (bool, error)
}

// NoopNotifier is the default Notifier when outbound notifications are
// disabled. It records the intent at debug level and reports not-sent,
// which leaves the email timestamp unset so a later enabled run can retry.
type NoopNotifier struct {
	logger *zap.Logger
}

// NewNoopNotifier creates a no-op notifier.
func NewNoopNotifier(logger *zap.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger.Named("noop-notifier")}
}

// Send implements Notifier.
func (n *NoopNotifier) Send(ctx context.Context, assigneeID uuid.UUID, templateKey string, fields map[string]string) (bool, error) {
	n.logger.Debug("Notification suppressed (notifier disabled)",
		zap.String("assignee_id", assigneeID.String()),
		zap.String("template", templateKey))
	return false, nil
}

var _ Notifier = (*NoopNotifier)(nil)
