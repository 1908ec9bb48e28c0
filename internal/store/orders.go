package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"checkout-service/internal/models"
)

// CreateOrder persists a new order in CREATED status. The amount is the
// frozen quote result and is never recomputed afterwards.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (email, mobile, name, college, course_id, coupon_id,
		                    amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.Email, order.Mobile, order.Name, order.College, order.CourseID,
		order.CouponID, order.Amount, order.Currency, order.Status)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetGatewayOrderID records the remote order reference. It only fills an
// empty slot, so a retried checkout cannot overwrite the reference.
func (s *Store) SetGatewayOrderID(ctx context.Context, orderID int64, gatewayOrderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET gateway_order_id = $1, updated_at = NOW()
		WHERE id = $2 AND (gateway_order_id = '' OR gateway_order_id = $1)`,
		gatewayOrderID, orderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrOrderMismatch
	}
	return nil
}

// UpdateOrderEmail corrects the buyer email on an order (manual override path)
func (s *Store) UpdateOrderEmail(ctx context.Context, orderID int64, email string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET email = $1, updated_at = NOW() WHERE id = $2",
		email, orderID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

// CountPaidOrdersByCoupon counts PAID orders referencing a coupon. Only PAID
// orders consume coupon budget.
func (s *Store) CountPaidOrdersByCoupon(ctx context.Context, couponID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE coupon_id = $1 AND status = $2",
		couponID, models.OrderStatusPaid)
	return count, err
}

// CountPaidOrdersByCouponAndEmail counts PAID orders referencing a coupon for
// one buyer email.
func (s *Store) CountPaidOrdersByCouponAndEmail(ctx context.Context, couponID int64, email string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE coupon_id = $1 AND email = $2 AND status = $3",
		couponID, email, models.OrderStatusPaid)
	return count, err
}

// MarkOrderPaid transitions an order CREATED -> PAID inside a single
// transaction. The order row is locked first, then the coupon row; locking
// the coupon serializes concurrent settlements for the same coupon, so the
// recount of PAID orders and the transition commit as one unit and the usage
// limit cannot be oversold.
//
// Returns transitioned=false with a nil error when the order was already
// PAID: the call is an idempotent no-op and the caller must not repeat side
// effects such as capture or notification.
//
// enforceCouponLimits is false only on the manual-override path, which may
// exceed usage limits by design.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID int64, gatewayPaymentID string, enforceCouponLimits bool) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return false, models.ErrOrderNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock order: %w", err)
	}

	if order.Status == models.OrderStatusPaid {
		return false, nil
	}
	if order.Status != models.OrderStatusCreated {
		return false, models.ErrInvalidTransition
	}

	if order.CouponID != nil && enforceCouponLimits {
		var coupon models.Coupon
		err = tx.GetContext(ctx, &coupon,
			"SELECT * FROM coupons WHERE id = $1 FOR UPDATE", *order.CouponID)
		if err != nil && err != sql.ErrNoRows {
			return false, fmt.Errorf("failed to lock coupon: %w", err)
		}
		if err == nil {
			if coupon.MaxUsageLimit != models.UnlimitedUsage {
				var used int
				err = tx.GetContext(ctx, &used,
					"SELECT COUNT(*) FROM orders WHERE coupon_id = $1 AND status = $2",
					coupon.ID, models.OrderStatusPaid)
				if err != nil {
					return false, err
				}
				if used >= coupon.MaxUsageLimit {
					return false, models.ErrUsageLimitExceeded
				}
			}
			if coupon.MaxUsagePerEmail != models.UnlimitedUsage {
				var used int
				err = tx.GetContext(ctx, &used,
					"SELECT COUNT(*) FROM orders WHERE coupon_id = $1 AND email = $2 AND status = $3",
					coupon.ID, order.Email, models.OrderStatusPaid)
				if err != nil {
					return false, err
				}
				if used >= coupon.MaxUsagePerEmail {
					return false, models.ErrUserUsageLimitExceeded
				}
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, gateway_payment_id = $2, paid_at = NOW(), updated_at = NOW()
		WHERE id = $3`,
		models.OrderStatusPaid, gatewayPaymentID, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// OrderFilter narrows ListOrders results
type OrderFilter struct {
	CourseID int64
	Status   string
}

// ListOrders retrieves orders matching the filter, newest first
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := "SELECT * FROM orders"
	var conds []string
	var args []interface{}

	if filter.CourseID != 0 {
		args = append(args, filter.CourseID)
		conds = append(conds, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}
