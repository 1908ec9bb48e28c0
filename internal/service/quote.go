package service

import (
	"checkout-service/internal/models"
)

// Quote is the computed price breakdown for a prospective purchase. Nothing
// is persisted at quote time.
type Quote struct {
	Price           int64 `json:"price"`
	Discount        int64 `json:"discount"`
	DiscountedPrice int64 `json:"discounted_price"`
}

// ComputeQuote calculates the price and discount for a course with an
// optional coupon. It is a pure function and safe to call repeatedly.
//
// Percentage discounts round with floor, in the seller's favor. The discount
// is clamped to the coupon's max cap when set, and can never exceed the
// price, so the discounted price is never negative.
func ComputeQuote(course *models.Course, coupon *models.Coupon, email string) (Quote, error) {
	quote := Quote{
		Price:           course.Price,
		DiscountedPrice: course.Price,
	}

	if coupon == nil {
		return quote, nil
	}

	if !coupon.AppliesTo(course.ID) {
		return Quote{}, models.ErrCouponNotApplicable
	}
	if !coupon.AllowsEmail(email) {
		return Quote{}, models.ErrCouponEmailNotAllowed
	}

	var discount int64
	switch coupon.DiscountUnit {
	case models.DiscountUnitPercentage:
		discount = coupon.DiscountValue * course.Price / 100
	case models.DiscountUnitFlat:
		discount = coupon.DiscountValue
	}

	if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
		discount = coupon.MaxDiscount
	}
	if discount > course.Price {
		discount = course.Price
	}
	if discount < 0 {
		discount = 0
	}

	quote.Discount = discount
	quote.DiscountedPrice = course.Price - discount
	return quote, nil
}
