package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateCourse persists a new course
func (s *Store) CreateCourse(ctx context.Context, course *models.Course) error {
	query := `
		INSERT INTO courses (title, price, original_price, currency, type, sub_course_ids)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, course, query,
		course.Title, course.Price, course.OriginalPrice, course.Currency,
		course.Type, course.SubCourseIDs)
}

// UpdateCourse updates an existing course
func (s *Store) UpdateCourse(ctx context.Context, course *models.Course) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE courses
		SET title = $1, price = $2, original_price = $3, currency = $4,
		    type = $5, sub_course_ids = $6, updated_at = NOW()
		WHERE id = $7`,
		course.Title, course.Price, course.OriginalPrice, course.Currency,
		course.Type, course.SubCourseIDs, course.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrCourseNotFound
	}
	return nil
}

// GetCourseByID retrieves a course by ID
func (s *Store) GetCourseByID(ctx context.Context, id int64) (*models.Course, error) {
	var course models.Course
	err := s.db.GetContext(ctx, &course, "SELECT * FROM courses WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// GetCourses retrieves all courses
func (s *Store) GetCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := s.db.SelectContext(ctx, &courses, "SELECT * FROM courses ORDER BY id")
	return courses, err
}

// CreateCoupon persists a new coupon. The code is normalized to upper case.
func (s *Store) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	coupon.Code = strings.ToUpper(coupon.Code)

	query := `
		INSERT INTO coupons (code, course_ids, emails, max_usage_limit,
		                     max_usage_per_email, discount_unit, discount_value, max_discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, coupon, query,
		coupon.Code, coupon.CourseIDs, coupon.Emails, coupon.MaxUsageLimit,
		coupon.MaxUsagePerEmail, coupon.DiscountUnit, coupon.DiscountValue,
		coupon.MaxDiscount)
}

// UpdateCoupon updates an existing coupon, including usage-limit edits
func (s *Store) UpdateCoupon(ctx context.Context, coupon *models.Coupon) error {
	coupon.Code = strings.ToUpper(coupon.Code)

	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons
		SET code = $1, course_ids = $2, emails = $3, max_usage_limit = $4,
		    max_usage_per_email = $5, discount_unit = $6, discount_value = $7,
		    max_discount = $8, updated_at = NOW()
		WHERE id = $9`,
		coupon.Code, coupon.CourseIDs, coupon.Emails, coupon.MaxUsageLimit,
		coupon.MaxUsagePerEmail, coupon.DiscountUnit, coupon.DiscountValue,
		coupon.MaxDiscount, coupon.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrCouponNotFound
	}
	return nil
}

// GetCouponByCode retrieves a coupon by code, case-insensitively
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon,
		"SELECT * FROM coupons WHERE code = $1", strings.ToUpper(code))
	if err == sql.ErrNoRows {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// GetCouponByID retrieves a coupon by ID
func (s *Store) GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}
