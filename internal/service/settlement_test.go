package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu      sync.Mutex
	orders  map[int64]*models.Order
	coupons map[int64]*models.Coupon
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:  make(map[int64]*models.Order),
		coupons: make(map[int64]*models.Coupon),
	}
}

func (f *fakeLedger) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeLedger) paidCount(couponID int64, email string) int {
	count := 0
	for _, o := range f.orders {
		if o.Status != models.OrderStatusPaid || o.CouponID == nil || *o.CouponID != couponID {
			continue
		}
		if email == "" || o.Email == email {
			count++
		}
	}
	return count
}

// MarkOrderPaid mirrors the store's transactional contract: the status check,
// the usage recount and the transition happen under one lock.
func (f *fakeLedger) MarkOrderPaid(ctx context.Context, orderID int64, gatewayPaymentID string, enforceCouponLimits bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return false, models.ErrOrderNotFound
	}
	if order.Status == models.OrderStatusPaid {
		return false, nil
	}

	if order.CouponID != nil && enforceCouponLimits {
		if coupon, ok := f.coupons[*order.CouponID]; ok {
			if coupon.MaxUsageLimit != models.UnlimitedUsage &&
				f.paidCount(coupon.ID, "") >= coupon.MaxUsageLimit {
				return false, models.ErrUsageLimitExceeded
			}
			if coupon.MaxUsagePerEmail != models.UnlimitedUsage &&
				f.paidCount(coupon.ID, order.Email) >= coupon.MaxUsagePerEmail {
				return false, models.ErrUserUsageLimitExceeded
			}
		}
	}

	order.Status = models.OrderStatusPaid
	order.GatewayPaymentID = gatewayPaymentID
	return true, nil
}

func (f *fakeLedger) UpdateOrderEmail(ctx context.Context, orderID int64, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return models.ErrOrderNotFound
	}
	order.Email = email
	return nil
}

type fakeGateway struct {
	mu         sync.Mutex
	captureErr error
	captures   int
}

func (f *fakeGateway) Capture(ctx context.Context, gatewayPaymentID string, amount int64, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures++
	return f.captureErr
}

type fakeVerifier struct {
	ok bool
}

func (f *fakeVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return f.ok
}

type fakePublisher struct {
	mu     sync.Mutex
	paid   int
	failed int
}

func (f *fakePublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid++
	return nil
}

func (f *fakePublisher) PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed++
	return nil
}

func createdOrder(id int64, couponID *int64, email string) *models.Order {
	return &models.Order{
		ID:             id,
		Email:          email,
		Name:           "Buyer",
		CourseID:       1,
		CouponID:       couponID,
		Amount:         8000,
		Currency:       "INR",
		Status:         models.OrderStatusCreated,
		GatewayOrderID: "gw_order_1",
	}
}

func webhookRequest(orderID int64) *SettlementRequest {
	return &SettlementRequest{
		OrderID:          orderID,
		GatewayOrderID:   "gw_order_1",
		GatewayPaymentID: "gw_pay_1",
		Signature:        "sig",
	}
}

func TestSettleIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.orders[1] = createdOrder(1, nil, "a@x.com")
	gateway := &fakeGateway{}
	publisher := &fakePublisher{}

	p := NewSettlementProcessor(ledger, gateway, &fakeVerifier{ok: true}, publisher, nil)

	result, err := p.Settle(context.Background(), webhookRequest(1))
	require.NoError(t, err)
	assert.False(t, result.AlreadyPaid)

	// Redelivered webhook: no second capture, no second notification.
	result, err = p.Settle(context.Background(), webhookRequest(1))
	require.NoError(t, err)
	assert.True(t, result.AlreadyPaid)

	assert.Equal(t, 1, gateway.captures)
	assert.Equal(t, 1, publisher.paid)
	assert.Equal(t, models.OrderStatusPaid, ledger.orders[1].Status)
}

func TestSettleSignatureMismatch(t *testing.T) {
	ledger := newFakeLedger()
	ledger.orders[1] = createdOrder(1, nil, "a@x.com")
	gateway := &fakeGateway{}

	p := NewSettlementProcessor(ledger, gateway, &fakeVerifier{ok: false}, &fakePublisher{}, nil)

	_, err := p.Settle(context.Background(), webhookRequest(1))
	assert.ErrorIs(t, err, models.ErrSignatureMismatch)

	// Verification gates everything downstream.
	assert.Equal(t, 0, gateway.captures)
	assert.Equal(t, models.OrderStatusCreated, ledger.orders[1].Status)
}

func TestSettleOrderNotFound(t *testing.T) {
	p := NewSettlementProcessor(newFakeLedger(), &fakeGateway{}, &fakeVerifier{ok: true}, &fakePublisher{}, nil)

	_, err := p.Settle(context.Background(), webhookRequest(404))
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestSettleOrderMismatch(t *testing.T) {
	ledger := newFakeLedger()
	ledger.orders[1] = createdOrder(1, nil, "a@x.com")

	p := NewSettlementProcessor(ledger, &fakeGateway{}, &fakeVerifier{ok: true}, &fakePublisher{}, nil)

	req := webhookRequest(1)
	req.GatewayOrderID = "gw_order_other"

	_, err := p.Settle(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrOrderMismatch)
	assert.Equal(t, models.OrderStatusCreated, ledger.orders[1].Status)
}

func TestSettleCaptureFailureLeavesOrderCreated(t *testing.T) {
	ledger := newFakeLedger()
	ledger.orders[1] = createdOrder(1, nil, "a@x.com")
	gateway := &fakeGateway{captureErr: models.ErrGatewayTimeout}
	publisher := &fakePublisher{}

	p := NewSettlementProcessor(ledger, gateway, &fakeVerifier{ok: true}, publisher, nil)

	_, err := p.Settle(context.Background(), webhookRequest(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGatewayTimeout)

	// Ambiguous outcome: order stays non-paid, manual reconciliation takes over.
	assert.Equal(t, models.OrderStatusCreated, ledger.orders[1].Status)
	assert.Equal(t, 1, publisher.failed)

	// Manual override with the confirmed payment id settles it...
	result, err := p.Settle(context.Background(), &SettlementRequest{
		OrderID:          1,
		GatewayPaymentID: "gw_pay_1",
		ManualOverride:   true,
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyPaid)
	assert.Equal(t, models.OrderStatusPaid, ledger.orders[1].Status)

	// ...and repeating the override is a no-op success.
	result, err = p.Settle(context.Background(), &SettlementRequest{
		OrderID:          1,
		GatewayPaymentID: "gw_pay_1",
		ManualOverride:   true,
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyPaid)
	assert.Equal(t, 1, gateway.captures)
}

func TestSettleConcurrentOversellPrevented(t *testing.T) {
	couponID := int64(3)
	ledger := newFakeLedger()
	ledger.coupons[couponID] = &models.Coupon{
		ID:               couponID,
		Code:             "ONCE",
		CourseIDs:        []int64{1},
		MaxUsageLimit:    1,
		MaxUsagePerEmail: models.UnlimitedUsage,
	}

	const attempts = 8
	for i := int64(1); i <= attempts; i++ {
		ledger.orders[i] = createdOrder(i, &couponID, "buyer@x.com")
		ledger.orders[i].GatewayOrderID = ""
	}

	p := NewSettlementProcessor(ledger, &fakeGateway{}, &fakeVerifier{ok: true}, &fakePublisher{}, nil)

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := int64(1); i <= attempts; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, errs[id-1] = p.Settle(context.Background(), &SettlementRequest{
				OrderID:          id,
				GatewayOrderID:   "",
				GatewayPaymentID: "gw_pay_x",
				Signature:        "sig",
			})
		}(i)
	}
	wg.Wait()

	paid := 0
	rejected := 0
	for i := int64(1); i <= attempts; i++ {
		if ledger.orders[i].Status == models.OrderStatusPaid {
			paid++
		}
	}
	for _, err := range errs {
		if errors.Is(err, models.ErrUsageLimitExceeded) {
			rejected++
		}
	}

	assert.Equal(t, 1, paid)
	assert.Equal(t, attempts-1, rejected)
}

func TestManualOverrideBypassesCouponLimits(t *testing.T) {
	couponID := int64(3)
	ledger := newFakeLedger()
	ledger.coupons[couponID] = &models.Coupon{
		ID:               couponID,
		Code:             "ONCE",
		CourseIDs:        []int64{1},
		MaxUsageLimit:    0,
		MaxUsagePerEmail: models.UnlimitedUsage,
	}
	ledger.orders[1] = createdOrder(1, &couponID, "a@x.com")
	gateway := &fakeGateway{}

	p := NewSettlementProcessor(ledger, gateway, &fakeVerifier{ok: true}, &fakePublisher{}, nil)

	result, err := p.Settle(context.Background(), &SettlementRequest{
		OrderID:          1,
		GatewayPaymentID: "gw_pay_1",
		ManualOverride:   true,
		CorrectedEmail:   "corrected@x.com",
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyPaid)

	// Override assumes the charge already happened: no capture call.
	assert.Equal(t, 0, gateway.captures)
	assert.Equal(t, models.OrderStatusPaid, ledger.orders[1].Status)
	assert.Equal(t, "corrected@x.com", ledger.orders[1].Email)
}
