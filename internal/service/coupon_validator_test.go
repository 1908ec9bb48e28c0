package service

import (
	"context"
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakeCounts struct {
	total    int
	perEmail int
	calls    int
}

func (f *fakeCounts) CountPaidOrdersByCoupon(ctx context.Context, couponID int64) (int, error) {
	f.calls++
	return f.total, nil
}

func (f *fakeCounts) CountPaidOrdersByCouponAndEmail(ctx context.Context, couponID int64, email string) (int, error) {
	f.calls++
	return f.perEmail, nil
}

func limitedCoupon(maxTotal, maxPerEmail int) *models.Coupon {
	return &models.Coupon{
		ID:               3,
		Code:             "LIMITED",
		CourseIDs:        []int64{1},
		MaxUsageLimit:    maxTotal,
		MaxUsagePerEmail: maxPerEmail,
		DiscountUnit:     models.DiscountUnitFlat,
		DiscountValue:    500,
	}
}

func TestValidateWithinBudget(t *testing.T) {
	counts := &fakeCounts{total: 4, perEmail: 0}
	v := NewCouponValidator(counts)

	err := v.Validate(context.Background(), limitedCoupon(5, 1), testCourse(10000), "a@x.com")
	assert.NoError(t, err)
}

func TestValidateTotalLimitExceeded(t *testing.T) {
	counts := &fakeCounts{total: 5}
	v := NewCouponValidator(counts)

	err := v.Validate(context.Background(), limitedCoupon(5, models.UnlimitedUsage), testCourse(10000), "a@x.com")
	assert.ErrorIs(t, err, models.ErrUsageLimitExceeded)
}

func TestValidateUserLimitExceeded(t *testing.T) {
	counts := &fakeCounts{total: 1, perEmail: 1}
	v := NewCouponValidator(counts)

	err := v.Validate(context.Background(), limitedCoupon(100, 1), testCourse(10000), "a@x.com")
	assert.ErrorIs(t, err, models.ErrUserUsageLimitExceeded)
}

func TestValidateUnlimitedSentinelSkipsCounting(t *testing.T) {
	counts := &fakeCounts{total: 1000000, perEmail: 1000000}
	v := NewCouponValidator(counts)

	err := v.Validate(context.Background(),
		limitedCoupon(models.UnlimitedUsage, models.UnlimitedUsage), testCourse(10000), "a@x.com")

	assert.NoError(t, err)
	assert.Zero(t, counts.calls)
}

func TestValidateApplicabilityFailsFirst(t *testing.T) {
	counts := &fakeCounts{total: 100}
	v := NewCouponValidator(counts)

	coupon := limitedCoupon(5, 1)
	coupon.CourseIDs = []int64{99}

	err := v.Validate(context.Background(), coupon, testCourse(10000), "a@x.com")
	assert.ErrorIs(t, err, models.ErrCouponNotApplicable)
	assert.Zero(t, counts.calls)
}
