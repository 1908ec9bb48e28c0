package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers for the public checkout surface
type Handler struct {
	checkout   *service.CheckoutService
	settlement *service.SettlementProcessor
	admin      *AdminHandler
	adminToken string
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout *service.CheckoutService, settlement *service.SettlementProcessor, admin *AdminHandler, adminToken string) *Handler {
	return &Handler{
		checkout:   checkout,
		settlement: settlement,
		admin:      admin,
		adminToken: adminToken,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/quote", h.getQuote)
		v1.POST("/checkout", h.createCheckout)
		v1.POST("/payments/callback/success", h.paymentSuccessCallback)
		v1.POST("/payments/callback/failure", h.paymentFailureCallback)
	}

	adminGroup := v1.Group("/admin")
	adminGroup.Use(AuthMiddleware(h.adminToken))
	h.admin.setupRoutes(adminGroup)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getQuote computes the price breakdown for a prospective purchase
func (h *Handler) getQuote(c *gin.Context) {
	courseID, err := strconv.ParseInt(c.Query("course_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course ID"})
		return
	}

	quote, err := h.checkout.Quote(c.Request.Context(),
		courseID, c.Query("coupon"), c.Query("email"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// createCheckout initiates a checkout and returns the gateway redirect payload
func (h *Handler) createCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// settlementCallback is the payload the gateway posts to the success
// callback. The local order id travels in the callback URL query.
type settlementCallback struct {
	GatewayPaymentID string `form:"gateway_payment_id" json:"gateway_payment_id" binding:"required"`
	GatewayOrderID   string `form:"gateway_order_id" json:"gateway_order_id" binding:"required"`
	Signature        string `form:"signature" json:"signature" binding:"required"`
}

// paymentSuccessCallback verifies and settles a gateway success callback
func (h *Handler) paymentSuccessCallback(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var cb settlementCallback
	if err := c.ShouldBind(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing callback fields"})
		return
	}

	result, err := h.settlement.Settle(c.Request.Context(), &service.SettlementRequest{
		OrderID:          orderID,
		GatewayOrderID:   cb.GatewayOrderID,
		GatewayPaymentID: cb.GatewayPaymentID,
		Signature:        cb.Signature,
	})
	if err != nil {
		respondSettlementError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"order_id":     orderID,
		"already_paid": result.AlreadyPaid,
	})
}

// paymentFailureCallback renders the failure outcome; no settlement happens
func (h *Handler) paymentFailureCallback(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "failed",
		"order_id": c.Query("order_id"),
	})
}

// respondError maps domain errors to HTTP responses. Validation failures
// carry a corrective message; infrastructure failures stay generic.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrCourseNotFound),
		errors.Is(err, models.ErrCouponNotFound),
		errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCouponNotApplicable),
		errors.Is(err, models.ErrCouponEmailNotAllowed),
		errors.Is(err, models.ErrUsageLimitExceeded),
		errors.Is(err, models.ErrUserUsageLimitExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrGatewayTimeout):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}

// respondSettlementError never leaks verification internals to the caller;
// the details go to the audit log instead.
func respondSettlementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSignatureMismatch),
		errors.Is(err, models.ErrOrderMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed"})
	case errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "failed"})
	case errors.Is(err, models.ErrUsageLimitExceeded),
		errors.Is(err, models.ErrUserUsageLimitExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "failed", "error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
