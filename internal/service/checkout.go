package service

import (
	"context"
	"fmt"
	"strings"

	"checkout-service/internal/gatewayclient"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CheckoutService handles quoting and checkout initiation
type CheckoutService struct {
	store     *store.Store
	redis     *redisclient.Client
	validator *CouponValidator
	gateway   *gatewayclient.Client
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store *store.Store,
	redis *redisclient.Client,
	validator *CouponValidator,
	gateway *gatewayclient.Client,
) *CheckoutService {
	return &CheckoutService{
		store:     store,
		redis:     redis,
		validator: validator,
		gateway:   gateway,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to start a checkout
type CheckoutRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Mobile     string `json:"mobile" binding:"required"`
	College    string `json:"college"`
	CourseID   int64  `json:"course_id" binding:"required"`
	CouponCode string `json:"coupon,omitempty"`
}

// CheckoutResponse carries the gateway redirect payload for the buyer
type CheckoutResponse struct {
	OrderID int64                         `json:"order_id"`
	Payload gatewayclient.CheckoutPayload `json:"payload"`
}

// Quote computes the price breakdown for a course with an optional coupon.
// Nothing is persisted.
func (s *CheckoutService) Quote(ctx context.Context, courseID int64, couponCode, email string) (Quote, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Quote")
	defer span.End()

	course, err := s.store.GetCourseByID(ctx, courseID)
	if err != nil {
		return Quote{}, err
	}

	var coupon *models.Coupon
	if couponCode != "" {
		coupon, err = s.lookupCoupon(ctx, couponCode)
		if err != nil {
			return Quote{}, err
		}
	}

	return ComputeQuote(course, coupon, email)
}

// Checkout validates the request, freezes the quoted amount into a new
// order, registers the order with the gateway and returns the redirect
// payload.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	course, err := s.store.GetCourseByID(ctx, req.CourseID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("course_not_found").Inc()
		return nil, err
	}

	var coupon *models.Coupon
	if req.CouponCode != "" {
		coupon, err = s.lookupCoupon(ctx, req.CouponCode)
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("coupon_not_found").Inc()
			return nil, err
		}

		if err := s.validator.Validate(ctx, coupon, course, req.Email); err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("coupon_rejected").Inc()
			return nil, err
		}

		// Advisory fail-fast against the Redis counters. The settlement
		// transaction remains the authority on usage budget.
		if err := s.redis.CheckUsageBudget(ctx, coupon.ID, req.Email,
			coupon.MaxUsageLimit, coupon.MaxUsagePerEmail); err != nil {
			if err == models.ErrUsageLimitExceeded || err == models.ErrUserUsageLimitExceeded {
				util.CheckoutsFailedTotal.WithLabelValues("coupon_rejected").Inc()
				return nil, err
			}
			s.logger.Warn("Redis usage check failed, relying on settlement recount",
				zap.String("coupon", coupon.Code),
				zap.Error(err))
		}
	}

	quote, err := ComputeQuote(course, coupon, req.Email)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("quote_failed").Inc()
		return nil, err
	}

	order := &models.Order{
		Email:    req.Email,
		Mobile:   req.Mobile,
		Name:     req.Name,
		College:  req.College,
		CourseID: course.ID,
		Amount:   quote.DiscountedPrice,
		Currency: course.Currency,
		Status:   models.OrderStatusCreated,
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	gatewayOrderID, err := s.gateway.CreateRemoteOrder(ctx, order.Amount, order.Currency, order.ID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("failed to create remote order: %w", err)
	}

	if err := s.store.SetGatewayOrderID(ctx, order.ID, gatewayOrderID); err != nil {
		return nil, fmt.Errorf("failed to store gateway order id: %w", err)
	}
	order.GatewayOrderID = gatewayOrderID

	util.CheckoutsTotal.Inc()
	s.logger.Info("Checkout initiated",
		zap.Int64("order_id", order.ID),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.Int64("amount", order.Amount))

	return &CheckoutResponse{
		OrderID: order.ID,
		Payload: s.gateway.BuildCheckoutPayload(order, gatewayOrderID),
	}, nil
}

// lookupCoupon resolves a coupon code via the Redis cache, falling back to
// the database.
func (s *CheckoutService) lookupCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	code = strings.ToUpper(code)

	cached, err := s.redis.GetCachedCoupon(ctx, code)
	if err != nil {
		s.logger.Warn("Coupon cache lookup failed", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.redis.CacheCoupon(ctx, coupon); err != nil {
		s.logger.Warn("Failed to cache coupon", zap.Error(err))
	}
	return coupon, nil
}
