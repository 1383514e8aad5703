package services

import (
	"context"
	"fmt"

	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/metrics"
	"github.com/merchforge/apiserver/types"
	"go.uber.org/zap"
)

// Notifier emails customers when the status of their order changes.
type Notifier struct {
	mailer  mailer.Mailer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewNotifier(m mailer.Mailer, mt *metrics.Metrics, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{mailer: m, metrics: mt, logger: logger}
}

// HandleEvent sends the status update email for order.status_changed events
// and ignores every other type. A returned error asks the broker to redeliver.
func (n *Notifier) HandleEvent(ctx context.Context, event types.OrderEvent) error {
	if event.Type != types.OrderEventStatusChanged {
		n.logger.Debug("ignoring order event",
			zap.String("type", event.Type),
			zap.String("order_number", event.OrderNumber))
		return nil
	}
	if event.Email == "" {
		n.logger.Warn("status change without recipient", zap.String("order_number", event.OrderNumber))
		return nil
	}

	msg, err := mailer.StatusUpdate(event)
	if err != nil {
		return err
	}
	err = n.mailer.Send(ctx, msg)
	n.metrics.ObserveEmail("status_update", err)
	if err != nil {
		return fmt.Errorf("send status update for %s: %w", event.OrderNumber, err)
	}

	n.logger.Info("status update sent",
		zap.String("order_number", event.OrderNumber),
		zap.String("status", string(event.Status)))
	return nil
}
