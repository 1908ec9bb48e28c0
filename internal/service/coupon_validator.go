package service

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// UsageCounter counts PAID orders for coupon budget checks (use an interface
// to allow mocking in tests)
type UsageCounter interface {
	CountPaidOrdersByCoupon(ctx context.Context, couponID int64) (int, error)
	CountPaidOrdersByCouponAndEmail(ctx context.Context, couponID int64, email string) (int, error)
}

// CouponValidator enforces coupon applicability, the email allow-list and
// usage limits. Checks run fail-fast: the first failure wins.
//
// Checkout-time validation is advisory only. Time passes between quote and
// gateway callback, so the authoritative check-and-reserve runs inside the
// settlement transaction (Store.MarkOrderPaid), which locks the coupon row
// and recounts before committing the PAID transition.
type CouponValidator struct {
	counts UsageCounter
	logger *zap.Logger
}

// NewCouponValidator creates a new coupon validator
func NewCouponValidator(counts UsageCounter) *CouponValidator {
	return &CouponValidator{
		counts: counts,
		logger: util.GetLogger(),
	}
}

// Validate runs the full check sequence for a coupon against a course and
// buyer email.
func (v *CouponValidator) Validate(ctx context.Context, coupon *models.Coupon, course *models.Course, email string) error {
	if _, err := ComputeQuote(course, coupon, email); err != nil {
		util.CouponRejectionsTotal.WithLabelValues("not_applicable").Inc()
		return err
	}

	if err := v.validateTotalUsageLimit(ctx, coupon); err != nil {
		return err
	}
	return v.validateUserUsageLimit(ctx, coupon, email)
}

func (v *CouponValidator) validateTotalUsageLimit(ctx context.Context, coupon *models.Coupon) error {
	if coupon.MaxUsageLimit == models.UnlimitedUsage {
		return nil
	}

	used, err := v.counts.CountPaidOrdersByCoupon(ctx, coupon.ID)
	if err != nil {
		return err
	}
	if used >= coupon.MaxUsageLimit {
		util.CouponRejectionsTotal.WithLabelValues("usage_limit").Inc()
		v.logger.Info("Coupon usage limit reached",
			zap.String("code", coupon.Code),
			zap.Int("used", used),
			zap.Int("limit", coupon.MaxUsageLimit))
		return models.ErrUsageLimitExceeded
	}
	return nil
}

func (v *CouponValidator) validateUserUsageLimit(ctx context.Context, coupon *models.Coupon, email string) error {
	if coupon.MaxUsagePerEmail == models.UnlimitedUsage {
		return nil
	}

	used, err := v.counts.CountPaidOrdersByCouponAndEmail(ctx, coupon.ID, email)
	if err != nil {
		return err
	}
	if used >= coupon.MaxUsagePerEmail {
		util.CouponRejectionsTotal.WithLabelValues("user_usage_limit").Inc()
		return models.ErrUserUsageLimitExceeded
	}
	return nil
}
