package models

import "errors"

// Domain errors. Handlers map these to HTTP responses; everything else is
// treated as an infrastructure failure and surfaced generically.
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrCouponNotFound = errors.New("coupon not found")
	ErrOrderNotFound  = errors.New("order not found")

	ErrCouponNotApplicable    = errors.New("coupon not applicable to this course")
	ErrCouponEmailNotAllowed  = errors.New("coupon not available for this email")
	ErrUsageLimitExceeded     = errors.New("coupon usage limit exceeded")
	ErrUserUsageLimitExceeded = errors.New("coupon usage limit for this email exceeded")

	ErrOrderMismatch     = errors.New("gateway order id does not match order")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrGatewayTimeout    = errors.New("payment gateway timed out")
)
