package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Client is the boundary to the external payment gateway. One instance is
// constructed at process start and passed in wherever gateway access is
// needed; nothing looks it up globally.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	callback  string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient creates a payment gateway client. callbackBaseURL is the public
// base URL of this service, used to build the redirect payload's callback
// URLs.
func NewClient(baseURL, keyID, keySecret, callbackBaseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		callback:  callbackBaseURL,
		http:      &http.Client{Timeout: timeout},
		logger:    util.GetLogger(),
	}
}

type remoteOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type remoteOrderResponse struct {
	ID string `json:"id"`
}

// CreateRemoteOrder registers the order with the gateway and returns the
// remote order id. The local order id is sent as the receipt so a retried
// call cannot create a duplicate remote order.
func (c *Client) CreateRemoteOrder(ctx context.Context, amount int64, currency string, localOrderID int64) (string, error) {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("create_order").Observe(time.Since(start).Seconds())
	}()

	body := remoteOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  fmt.Sprintf("order_%d", localOrderID),
	}

	var resp remoteOrderResponse
	if err := c.post(ctx, "/v1/orders", body, &resp); err != nil {
		util.GatewayErrorsTotal.WithLabelValues("create_order", errorKind(err)).Inc()
		return "", err
	}

	if resp.ID == "" {
		util.GatewayErrorsTotal.WithLabelValues("create_order", "bad_response").Inc()
		return "", fmt.Errorf("gateway returned empty order id")
	}

	c.logger.Info("Remote order created",
		zap.Int64("order_id", localOrderID),
		zap.String("gateway_order_id", resp.ID))
	return resp.ID, nil
}

type captureRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Capture finalizes the charge for a payment. On timeout the outcome is
// unknown: the caller must leave the order non-PAID and surface it for
// manual reconciliation. Capture is never retried automatically because a
// retry can double-charge.
func (c *Client) Capture(ctx context.Context, gatewayPaymentID string, amount int64, currency string) error {
	start := time.Now()
	defer func() {
		util.GatewayRequestLatency.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	}()

	path := fmt.Sprintf("/v1/payments/%s/capture", gatewayPaymentID)
	err := c.post(ctx, path, captureRequest{Amount: amount, Currency: currency}, nil)
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues("capture", errorKind(err)).Inc()
		return err
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", models.ErrGatewayTimeout, path)
		}
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorKind(err error) string {
	if errors.Is(err, models.ErrGatewayTimeout) {
		return "timeout"
	}
	return "error"
}

// CheckoutPayload is the buyer-facing redirect payload. The callback URLs
// carry the local order id so the webhook can be correlated back.
type CheckoutPayload struct {
	Key            string `json:"key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	GatewayOrderID string `json:"order_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile"`
	CallbackURL    string `json:"callback_url"`
	CancelURL      string `json:"cancel_url"`
}

// BuildCheckoutPayload assembles the redirect payload for an order
func (c *Client) BuildCheckoutPayload(order *models.Order, gatewayOrderID string) CheckoutPayload {
	return CheckoutPayload{
		Key:            c.keyID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		GatewayOrderID: gatewayOrderID,
		Name:           order.Name,
		Email:          order.Email,
		Mobile:         order.Mobile,
		CallbackURL:    fmt.Sprintf("%s/api/v1/payments/callback/success?order_id=%d", c.callback, order.ID),
		CancelURL:      fmt.Sprintf("%s/api/v1/payments/callback/failure?order_id=%d", c.callback, order.ID),
	}
}
