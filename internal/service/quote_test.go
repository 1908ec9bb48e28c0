package service

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCourse(price int64) *models.Course {
	return &models.Course{
		ID:       1,
		Title:    "Test Prep",
		Price:    price,
		Currency: "INR",
		Type:     models.CourseTypeSingle,
	}
}

func TestComputeQuoteWithoutCoupon(t *testing.T) {
	quote, err := ComputeQuote(testCourse(10000), nil, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(10000), quote.Price)
	assert.Equal(t, int64(0), quote.Discount)
	assert.Equal(t, int64(10000), quote.DiscountedPrice)
}

func TestComputeQuoteFlatDiscount(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "FLAT2000",
		CourseIDs:     []int64{1},
		DiscountUnit:  models.DiscountUnitFlat,
		DiscountValue: 2000,
	}

	quote, err := ComputeQuote(testCourse(10000), coupon, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(2000), quote.Discount)
	assert.Equal(t, int64(8000), quote.DiscountedPrice)
}

func TestComputeQuotePercentageWithCap(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "HALF",
		CourseIDs:     []int64{1},
		DiscountUnit:  models.DiscountUnitPercentage,
		DiscountValue: 50,
		MaxDiscount:   3000,
	}

	// Raw discount is 5000, clamped to the 3000 cap.
	quote, err := ComputeQuote(testCourse(10000), coupon, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(3000), quote.Discount)
	assert.Equal(t, int64(7000), quote.DiscountedPrice)
}

func TestComputeQuotePercentageFloors(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "THIRD",
		CourseIDs:     []int64{1},
		DiscountUnit:  models.DiscountUnitPercentage,
		DiscountValue: 33,
	}

	// 33% of 999 is 329.67; rounding floors in the seller's favor.
	quote, err := ComputeQuote(testCourse(999), coupon, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(329), quote.Discount)
	assert.Equal(t, int64(670), quote.DiscountedPrice)
}

func TestComputeQuoteDiscountNeverExceedsPrice(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "BIG",
		CourseIDs:     []int64{1},
		DiscountUnit:  models.DiscountUnitFlat,
		DiscountValue: 50000,
	}

	quote, err := ComputeQuote(testCourse(10000), coupon, "a@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(10000), quote.Discount)
	assert.Equal(t, int64(0), quote.DiscountedPrice)
}

func TestComputeQuoteCouponNotApplicable(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "OTHER",
		CourseIDs:     []int64{42},
		DiscountUnit:  models.DiscountUnitFlat,
		DiscountValue: 100,
	}

	_, err := ComputeQuote(testCourse(10000), coupon, "a@x.com")
	assert.ErrorIs(t, err, models.ErrCouponNotApplicable)
}

func TestComputeQuoteEmailRestriction(t *testing.T) {
	coupon := &models.Coupon{
		ID:            7,
		Code:          "VIP",
		CourseIDs:     []int64{1},
		Emails:        []string{"a@x.com"},
		DiscountUnit:  models.DiscountUnitFlat,
		DiscountValue: 100,
		MaxUsageLimit: models.UnlimitedUsage,
	}

	// Restricted regardless of remaining usage budget.
	_, err := ComputeQuote(testCourse(10000), coupon, "b@x.com")
	assert.ErrorIs(t, err, models.ErrCouponEmailNotAllowed)

	quote, err := ComputeQuote(testCourse(10000), coupon, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(100), quote.Discount)
}
