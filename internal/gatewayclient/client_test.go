package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRemoteOrder(t *testing.T) {
	var gotReceipt string
	var gotAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		gotAuth = ok && user == "key_id" && pass == "key_secret"

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotReceipt, _ = body["receipt"].(string)

		json.NewEncoder(w).Encode(map[string]string{"id": "gw_order_42"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", "http://localhost:8080", 5*time.Second)

	id, err := c.CreateRemoteOrder(context.Background(), 8000, "INR", 42)
	require.NoError(t, err)

	assert.Equal(t, "gw_order_42", id)
	assert.Equal(t, "order_42", gotReceipt)
	assert.True(t, gotAuth)
}

func TestCaptureSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/gw_pay_1/capture", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", "http://localhost:8080", 5*time.Second)

	err := c.Capture(context.Background(), "gw_pay_1", 8000, "INR")
	assert.NoError(t, err)
}

func TestCaptureRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", "http://localhost:8080", 5*time.Second)

	err := c.Capture(context.Background(), "gw_pay_1", 8000, "INR")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrGatewayTimeout)
}

func TestCaptureTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key_id", "key_secret", "http://localhost:8080", 50*time.Millisecond)

	err := c.Capture(context.Background(), "gw_pay_1", 8000, "INR")
	assert.ErrorIs(t, err, models.ErrGatewayTimeout)
}

func TestBuildCheckoutPayload(t *testing.T) {
	c := NewClient("https://api.gateway.test", "key_id", "key_secret", "https://shop.example.com", 5*time.Second)

	order := &models.Order{
		ID:       42,
		Email:    "a@x.com",
		Mobile:   "9999999999",
		Name:     "Buyer",
		Amount:   8000,
		Currency: "INR",
	}

	payload := c.BuildCheckoutPayload(order, "gw_order_42")

	assert.Equal(t, "key_id", payload.Key)
	assert.Equal(t, int64(8000), payload.Amount)
	assert.Equal(t, "gw_order_42", payload.GatewayOrderID)
	assert.True(t, strings.HasSuffix(payload.CallbackURL, "/api/v1/payments/callback/success?order_id=42"))
	assert.True(t, strings.HasSuffix(payload.CancelURL, "/api/v1/payments/callback/failure?order_id=42"))
}
