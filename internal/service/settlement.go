package service

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the slice of the order store the settlement path needs. The
// store's MarkOrderPaid is the single writer of order status.
type Ledger interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID int64, gatewayPaymentID string, enforceCouponLimits bool) (bool, error)
	UpdateOrderEmail(ctx context.Context, orderID int64, email string) error
}

// Gateway captures payments
type Gateway interface {
	Capture(ctx context.Context, gatewayPaymentID string, amount int64, currency string) error
}

// SignatureVerifier authenticates webhook payloads
type SignatureVerifier interface {
	Verify(gatewayOrderID, gatewayPaymentID, signature string) bool
}

// NotificationPublisher publishes settlement outcome events
type NotificationPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error
}

// UsageRecorder bumps the advisory coupon usage counters
type UsageRecorder interface {
	BumpUsage(ctx context.Context, couponID int64, email string) error
}

// SettlementProcessor turns a verified webhook (or a manual override) into
// an idempotent PAID transition.
type SettlementProcessor struct {
	ledger    Ledger
	gateway   Gateway
	verifier  SignatureVerifier
	publisher NotificationPublisher
	usage     UsageRecorder
	logger    *zap.Logger
}

// NewSettlementProcessor creates a new settlement processor. usage may be
// nil when no advisory counters are kept.
func NewSettlementProcessor(
	ledger Ledger,
	gateway Gateway,
	verifier SignatureVerifier,
	publisher NotificationPublisher,
	usage UsageRecorder,
) *SettlementProcessor {
	return &SettlementProcessor{
		ledger:    ledger,
		gateway:   gateway,
		verifier:  verifier,
		publisher: publisher,
		usage:     usage,
		logger:    util.GetLogger(),
	}
}

// SettlementRequest carries a gateway callback or a manual override
type SettlementRequest struct {
	OrderID          int64
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string

	// ManualOverride marks an authenticated administrative reconciliation.
	// It skips signature verification, capture and coupon usage limits, and
	// is audit-logged on every use.
	ManualOverride bool
	CorrectedEmail string
}

// SettlementResult reports the settlement outcome
type SettlementResult struct {
	AlreadyPaid bool
}

// Settle finalizes an order. Repeated delivery of the same webhook produces
// exactly one PAID transition and at most one notification; later calls are
// no-op successes.
func (p *SettlementProcessor) Settle(ctx context.Context, req *SettlementRequest) (*SettlementResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementProcessor.Settle")
	defer span.End()

	if !req.ManualOverride {
		if !p.verifier.Verify(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
			util.SignatureFailuresTotal.Inc()
			util.SettlementsTotal.WithLabelValues("signature_mismatch").Inc()
			p.logger.Warn("Webhook signature mismatch",
				zap.Int64("order_id", req.OrderID),
				zap.String("gateway_order_id", req.GatewayOrderID),
				zap.String("gateway_payment_id", req.GatewayPaymentID))
			return nil, models.ErrSignatureMismatch
		}
	}

	order, err := p.ledger.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		util.SettlementsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	if !req.ManualOverride && order.GatewayOrderID != "" && order.GatewayOrderID != req.GatewayOrderID {
		util.SettlementsTotal.WithLabelValues("order_mismatch").Inc()
		p.logger.Warn("Gateway order id mismatch",
			zap.Int64("order_id", order.ID),
			zap.String("stored", order.GatewayOrderID),
			zap.String("inbound", req.GatewayOrderID))
		return nil, models.ErrOrderMismatch
	}

	if req.ManualOverride {
		util.ManualOverridesTotal.Inc()
		p.logger.Warn("Manual mark-paid override",
			zap.Int64("order_id", order.ID),
			zap.String("gateway_payment_id", req.GatewayPaymentID),
			zap.String("corrected_email", req.CorrectedEmail))
	}

	if order.Status == models.OrderStatusPaid {
		util.SettlementsDuplicateTotal.Inc()
		util.SettlementsTotal.WithLabelValues("duplicate").Inc()
		return &SettlementResult{AlreadyPaid: true}, nil
	}

	if req.ManualOverride && req.CorrectedEmail != "" {
		if err := p.ledger.UpdateOrderEmail(ctx, order.ID, req.CorrectedEmail); err != nil {
			return nil, fmt.Errorf("failed to correct order email: %w", err)
		}
		order.Email = req.CorrectedEmail
	}

	if !req.ManualOverride {
		// A capture timeout leaves the outcome unknown: the order stays
		// non-PAID and the recovery path is webhook redelivery or manual
		// reconciliation, never an automatic retry.
		if err := p.gateway.Capture(ctx, req.GatewayPaymentID, order.Amount, order.Currency); err != nil {
			util.SettlementsTotal.WithLabelValues("capture_failed").Inc()
			p.logger.Error("Capture failed, order left unsettled",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			p.publishFailure(ctx, order.ID, "capture_failed")
			return nil, fmt.Errorf("capture failed: %w", err)
		}
	}

	transitioned, err := p.ledger.MarkOrderPaid(ctx, order.ID, req.GatewayPaymentID, !req.ManualOverride)
	if err != nil {
		util.SettlementsTotal.WithLabelValues("rejected").Inc()
		p.publishFailure(ctx, order.ID, err.Error())
		return nil, err
	}
	if !transitioned {
		// A concurrent settlement committed first.
		util.SettlementsDuplicateTotal.Inc()
		util.SettlementsTotal.WithLabelValues("duplicate").Inc()
		return &SettlementResult{AlreadyPaid: true}, nil
	}

	util.OrdersPaidTotal.Inc()
	util.SettlementsTotal.WithLabelValues("paid").Inc()
	p.logger.Info("Order settled",
		zap.Int64("order_id", order.ID),
		zap.String("gateway_payment_id", req.GatewayPaymentID),
		zap.Bool("manual_override", req.ManualOverride))

	if order.CouponID != nil && p.usage != nil {
		if err := p.usage.BumpUsage(ctx, *order.CouponID, order.Email); err != nil {
			p.logger.Warn("Failed to bump coupon usage counters", zap.Error(err))
		}
	}

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:          order.ID,
		Email:            order.Email,
		Name:             order.Name,
		CourseID:         order.CourseID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		GatewayPaymentID: req.GatewayPaymentID,
		ManualOverride:   req.ManualOverride,
	}
	if err := p.publisher.PublishOrderPaid(ctx, event); err != nil {
		p.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}

	return &SettlementResult{}, nil
}

func (p *SettlementProcessor) publishFailure(ctx context.Context, orderID int64, reason string) {
	event := &models.SettlementFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSettlementFailed,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Reason:  reason,
	}
	if err := p.publisher.PublishSettlementFailed(ctx, event); err != nil {
		p.logger.Error("Failed to publish SettlementFailed event", zap.Error(err))
	}
}
