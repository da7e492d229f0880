package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/utils"
)

// GatewayOrder is the payment gateway's view of an order awaiting payment
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// PaymentGateway creates gateway-side orders that the client then pays
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error)
}

// HTTPPaymentGateway talks to a Razorpay-compatible orders API
type HTTPPaymentGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

var paymentGatewayInstance PaymentGateway

// NewHTTPPaymentGateway creates a gateway client authenticating with basic auth
func NewHTTPPaymentGateway(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InitPaymentGateway initializes the payment gateway from configuration
func InitPaymentGateway() PaymentGateway {
	cfg := config.GetConfig()
	paymentGatewayInstance = NewHTTPPaymentGateway(cfg.PaymentAPIURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, 15*time.Second)
	return paymentGatewayInstance
}

// GetPaymentGateway returns the initialized payment gateway
func GetPaymentGateway() PaymentGateway {
	return paymentGatewayInstance
}

// SetPaymentGateway sets the payment gateway (primarily for testing)
func SetPaymentGateway(gateway PaymentGateway) {
	paymentGatewayInstance = gateway
}

// CreateOrder registers an order of amount paise with the gateway
func (g *HTTPPaymentGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*GatewayOrder, error) {
	body, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewUpstreamError("PAYMENT_GATEWAY_ERROR", "Payment gateway is unavailable", nil, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewUpstreamError("PAYMENT_GATEWAY_ERROR", "Failed to read payment gateway response", nil, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.NewUpstreamError("PAYMENT_GATEWAY_ERROR", "Payment gateway rejected the order",
			string(raw), fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var order GatewayOrder
	if err := json.Unmarshal(raw, &order); err != nil || order.ID == "" {
		return nil, utils.NewUpstreamError("PAYMENT_GATEWAY_ERROR", "Payment gateway returned an invalid order",
			string(raw), err)
	}
	return &order, nil
}

// SignPayment computes the hex HMAC-SHA256 the gateway attaches to a payment:
// the key is the gateway secret, the message is "orderID|paymentID".
func SignPayment(secret, gatewayOrderID, paymentID string) string {
	return sign(secret, []byte(gatewayOrderID+"|"+paymentID))
}

// VerifyPaymentSignature compares signature to the expected one in constant time
func VerifyPaymentSignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignPayment(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the HMAC-SHA256 of a raw webhook body
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(sign(secret, body)), []byte(signature))
}

func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
