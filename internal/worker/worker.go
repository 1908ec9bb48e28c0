package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers order notifications to the external notification sink
// (the mailer service). Delivery is best-effort.
type Notifier struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewNotifier creates a notifier posting to the given endpoint. An empty
// endpoint disables delivery.
func NewNotifier(endpoint string) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   util.GetLogger(),
	}
}

// NotifyOrderPaid posts a payment confirmation to the notification sink
func (n *Notifier) NotifyOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	if n.endpoint == "" {
		n.logger.Debug("Notification endpoint not configured, skipping",
			zap.Int64("order_id", event.OrderID))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification sink returned status %d", resp.StatusCode)
	}
	return nil
}

// NotificationWorker consumes OrderPaid events and dispatches buyer
// notifications. Dispatch failures are logged and the message is committed
// anyway: notifications never block or fail the settlement path.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     *Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier *Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		notifier: notifier,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	w.eventHandler = eventHandler

	return w
}

func (w *NotificationWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	if err := w.notifier.NotifyOrderPaid(ctx, event); err != nil {
		util.NotificationsFailedTotal.Inc()
		w.logger.Error("Failed to dispatch order notification",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		return nil
	}

	util.NotificationsSentTotal.Inc()
	w.logger.Info("Order notification dispatched",
		zap.Int64("order_id", event.OrderID),
		zap.String("email", event.Email))
	return nil
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}
