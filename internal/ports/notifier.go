package ports

import (
	"context"

	"github.com/alejandrodnm/ilguard/internal/domain"
)

// Notifier publishes controller notifications (created, breached, withdrawn, admin changes).
type Notifier interface {
	// Notify receives the notifications of one venue event, in emission order.
	Notify(ctx context.Context, notifications []domain.Notification) error
}
