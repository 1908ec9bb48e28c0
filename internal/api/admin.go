package api

import (
	"crypto/subtle"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware gates the admin surface behind an opaque bearer token.
// Identity and role management live in an external service; this check only
// verifies the shared token.
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// AdminHandler contains the role-gated administrative handlers
type AdminHandler struct {
	store      *store.Store
	redis      *redisclient.Client
	settlement *service.SettlementProcessor
	logger     *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store *store.Store, redis *redisclient.Client, settlement *service.SettlementProcessor) *AdminHandler {
	return &AdminHandler{
		store:      store,
		redis:      redis,
		settlement: settlement,
		logger:     util.GetLogger(),
	}
}

func (h *AdminHandler) setupRoutes(g *gin.RouterGroup) {
	g.POST("/courses", h.createCourse)
	g.PUT("/courses/:id", h.updateCourse)
	g.POST("/coupons", h.createCoupon)
	g.PUT("/coupons/:id", h.updateCoupon)
	g.GET("/orders", h.listOrders)
	g.GET("/orders/export", h.exportOrders)
	g.POST("/orders/:id/mark-paid", h.markOrderPaid)
}

type courseRequest struct {
	Title         string  `json:"title" binding:"required"`
	Price         int64   `json:"price" binding:"min=0"`
	OriginalPrice *int64  `json:"original_price"`
	Currency      string  `json:"currency" binding:"required"`
	Type          string  `json:"type" binding:"required,oneof=course combo"`
	SubCourseIDs  []int64 `json:"sub_course_ids"`
}

func (h *AdminHandler) createCourse(c *gin.Context) {
	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	course := &models.Course{
		Title:         req.Title,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Currency:      req.Currency,
		Type:          req.Type,
		SubCourseIDs:  req.SubCourseIDs,
	}

	if err := h.store.CreateCourse(c.Request.Context(), course); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *AdminHandler) updateCourse(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	var req courseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	course := &models.Course{
		ID:            id,
		Title:         req.Title,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Currency:      req.Currency,
		Type:          req.Type,
		SubCourseIDs:  req.SubCourseIDs,
	}

	if err := h.store.UpdateCourse(c.Request.Context(), course); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

type couponRequest struct {
	Code             string   `json:"code" binding:"required"`
	CourseIDs        []int64  `json:"course_ids" binding:"required,min=1"`
	Emails           []string `json:"emails"`
	MaxUsageLimit    int      `json:"max_usage_limit" binding:"min=-1"`
	MaxUsagePerEmail int      `json:"max_usage_per_email" binding:"min=-1"`
	DiscountUnit     string   `json:"discount_unit" binding:"required,oneof=percentage flat"`
	DiscountValue    int64    `json:"discount_value" binding:"min=0"`
	MaxDiscount      int64    `json:"max_discount" binding:"min=0"`
}

func (req *couponRequest) toModel() *models.Coupon {
	return &models.Coupon{
		Code:             req.Code,
		CourseIDs:        req.CourseIDs,
		Emails:           req.Emails,
		MaxUsageLimit:    req.MaxUsageLimit,
		MaxUsagePerEmail: req.MaxUsagePerEmail,
		DiscountUnit:     req.DiscountUnit,
		DiscountValue:    req.DiscountValue,
		MaxDiscount:      req.MaxDiscount,
	}
}

func (h *AdminHandler) createCoupon(c *gin.Context) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	coupon := req.toModel()
	if err := h.store.CreateCoupon(c.Request.Context(), coupon); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

func (h *AdminHandler) updateCoupon(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon ID"})
		return
	}

	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	coupon := req.toModel()
	coupon.ID = id
	if err := h.store.UpdateCoupon(c.Request.Context(), coupon); err != nil {
		respondError(c, err)
		return
	}

	if err := h.redis.InvalidateCoupon(c.Request.Context(), coupon.Code); err != nil {
		h.logger.Warn("Failed to invalidate coupon cache", zap.Error(err))
	}
	c.JSON(http.StatusOK, coupon)
}

func (h *AdminHandler) orderFilter(c *gin.Context) store.OrderFilter {
	var filter store.OrderFilter
	if courseID, err := strconv.ParseInt(c.Query("course_id"), 10, 64); err == nil {
		filter.CourseID = courseID
	}
	filter.Status = c.Query("status")
	return filter
}

func (h *AdminHandler) listOrders(c *gin.Context) {
	orders, err := h.store.ListOrders(c.Request.Context(), h.orderFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *AdminHandler) exportOrders(c *gin.Context) {
	orders, err := h.store.ListOrders(c.Request.Context(), h.orderFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=orders.csv")

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "email", "mobile", "name", "college", "course_id",
		"coupon_id", "amount", "currency", "status", "gateway_order_id",
		"gateway_payment_id", "created_at"})

	for _, o := range orders {
		couponID := ""
		if o.CouponID != nil {
			couponID = strconv.FormatInt(*o.CouponID, 10)
		}
		_ = w.Write([]string{
			strconv.FormatInt(o.ID, 10), o.Email, o.Mobile, o.Name, o.College,
			strconv.FormatInt(o.CourseID, 10), couponID,
			strconv.FormatInt(o.Amount, 10), o.Currency, o.Status,
			o.GatewayOrderID, o.GatewayPaymentID,
			o.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
}

type markPaidRequest struct {
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Email            string `json:"email"`
}

// markOrderPaid is the manual reconciliation escape hatch: it assumes the
// charge already happened at the gateway and bypasses capture and coupon
// re-validation. Every use is audit-logged by the settlement processor.
func (h *AdminHandler) markOrderPaid(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req markPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.settlement.Settle(c.Request.Context(), &service.SettlementRequest{
		OrderID:          orderID,
		GatewayPaymentID: req.GatewayPaymentID,
		ManualOverride:   true,
		CorrectedEmail:   req.Email,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "paid",
		"order_id":     orderID,
		"already_paid": result.AlreadyPaid,
	})
}
