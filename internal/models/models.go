package models

import (
	"time"

	"github.com/lib/pq"
)

// Course types
const (
	CourseTypeSingle = "course"
	CourseTypeCombo  = "combo"
)

// Course represents a purchasable course or combo. Prices are integer
// minor currency units.
type Course struct {
	ID            int64         `db:"id" json:"id"`
	Title         string        `db:"title" json:"title"`
	Price         int64         `db:"price" json:"price"`
	OriginalPrice *int64        `db:"original_price" json:"original_price,omitempty"`
	Currency      string        `db:"currency" json:"currency"`
	Type          string        `db:"type" json:"type"`
	SubCourseIDs  pq.Int64Array `db:"sub_course_ids" json:"sub_course_ids,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Discount units
const (
	DiscountUnitPercentage = "percentage"
	DiscountUnitFlat       = "flat"
)

// UnlimitedUsage is the sentinel for coupons without a usage cap.
const UnlimitedUsage = -1

// Coupon represents a discount code. Codes are stored upper-case and matched
// case-insensitively. An empty Emails list means no email restriction.
type Coupon struct {
	ID               int64          `db:"id" json:"id"`
	Code             string         `db:"code" json:"code"`
	CourseIDs        pq.Int64Array  `db:"course_ids" json:"course_ids"`
	Emails           pq.StringArray `db:"emails" json:"emails,omitempty"`
	MaxUsageLimit    int            `db:"max_usage_limit" json:"max_usage_limit"`
	MaxUsagePerEmail int            `db:"max_usage_per_email" json:"max_usage_per_email"`
	DiscountUnit     string         `db:"discount_unit" json:"discount_unit"`
	DiscountValue    int64          `db:"discount_value" json:"discount_value"`
	MaxDiscount      int64          `db:"max_discount" json:"max_discount"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// AppliesTo reports whether the coupon lists the given course.
func (c *Coupon) AppliesTo(courseID int64) bool {
	for _, id := range c.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// AllowsEmail reports whether the buyer email passes the coupon's allow-list.
// An empty list allows everyone.
func (c *Coupon) AllowsEmail(email string) bool {
	if len(c.Emails) == 0 {
		return true
	}
	for _, e := range c.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// Order statuses. Transitions are monotonic: CREATED -> PAID, and PAID is
// terminal. ATTEMPTED exists in the schema but no transition produces it yet;
// it is reserved for a future "pending redirect" state.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusAttempted = "ATTEMPTED"
	OrderStatusPaid      = "PAID"
)

// Order represents a purchase. Amount is frozen at creation time from the
// quote and is never recomputed afterwards.
type Order struct {
	ID               int64      `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Mobile           string     `db:"mobile" json:"mobile"`
	Name             string     `db:"name" json:"name"`
	College          string     `db:"college" json:"college,omitempty"`
	CourseID         int64      `db:"course_id" json:"course_id"`
	CouponID         *int64     `db:"coupon_id" json:"coupon_id,omitempty"`
	Amount           int64      `db:"amount" json:"amount"`
	Currency         string     `db:"currency" json:"currency"`
	Status           string     `db:"status" json:"status"`
	GatewayOrderID   string     `db:"gateway_order_id" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}
