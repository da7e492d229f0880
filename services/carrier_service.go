package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-api/config"
	"github.com/shopspring/decimal"
)

// Amount is a major-unit money or measurement value. It marshals as a bare
// JSON number with two decimals.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// MarshalJSON writes the amount as a number such as 12.50
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(2)), nil
}

// UnmarshalJSON accepts both quoted and bare numbers
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// CarrierOrderItem is one line of a carrier order
type CarrierOrderItem struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Units        int    `json:"units"`
	SellingPrice Amount `json:"selling_price"`
}

// CarrierOrderPayload is the order-creation request sent to the carrier
type CarrierOrderPayload struct {
	OrderID             string             `json:"order_id"`
	OrderDate           string             `json:"order_date"`
	PickupLocation      string             `json:"pickup_location"`
	BillingCustomerName string             `json:"billing_customer_name"`
	BillingAddress      string             `json:"billing_address"`
	BillingAddress2     string             `json:"billing_address_2,omitempty"`
	BillingCity         string             `json:"billing_city"`
	BillingPincode      string             `json:"billing_pincode"`
	BillingState        string             `json:"billing_state"`
	BillingCountry      string             `json:"billing_country"`
	BillingEmail        string             `json:"billing_email,omitempty"`
	BillingPhone        string             `json:"billing_phone"`
	ShippingIsBilling   bool               `json:"shipping_is_billing"`
	OrderItems          []CarrierOrderItem `json:"order_items"`
	PaymentMethod       string             `json:"payment_method"`
	PaymentStatus       string             `json:"payment_status"`
	CODAmount           Amount             `json:"cod_amount"`
	SubTotal            Amount             `json:"sub_total"`
	ShippingCharges     Amount             `json:"shipping_charges"`
	TransactionCharges  Amount             `json:"transaction_charges"`
	TotalDiscount       Amount             `json:"total_discount"`
	Length              Amount             `json:"length"`
	Breadth             Amount             `json:"breadth"`
	Height              Amount             `json:"height"`
	Weight              Amount             `json:"weight"`
}

// CarrierShipment is a shipment assigned by the carrier
type CarrierShipment struct {
	ShipmentID  string `json:"shipment_id"`
	AWB         string `json:"awb_code"`
	CourierName string `json:"courier_name"`
	CourierID   string `json:"courier_company_id"`
	LabelURL    string `json:"label_url"`
	ManifestURL string `json:"manifest_url"`
}

// CarrierOrderResponse is the carrier's reply to order creation. Status 1
// means the order was accepted.
type CarrierOrderResponse struct {
	Status   int               `json:"status"`
	OrderID  string            `json:"order_id"`
	Message  string            `json:"message,omitempty"`
	Shipment []CarrierShipment `json:"shipment"`
}

// CarrierTrackingRecord is the latest known state of one AWB
type CarrierTrackingRecord struct {
	AWB           string          `json:"awb"`
	CurrentStatus string          `json:"current_status"`
	Scans         json.RawMessage `json:"scans,omitempty"`
}

// CarrierTrackingResponse is the carrier's reply to a tracking lookup
type CarrierTrackingResponse struct {
	Success bool                    `json:"success"`
	Records []CarrierTrackingRecord `json:"records"`
}

// CarrierError carries the carrier's HTTP status and raw response body
type CarrierError struct {
	StatusCode int
	Body       string
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("carrier request failed with status %d: %s", e.StatusCode, e.Body)
}

// CarrierClient talks to the shipping carrier
type CarrierClient interface {
	CreateOrderWrapper(ctx context.Context, payload *CarrierOrderPayload) (*CarrierOrderResponse, error)
	TrackOrder(ctx context.Context, awb string) (*CarrierTrackingResponse, error)
}

// HTTPCarrierClient is the carrier's REST API client
type HTTPCarrierClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var carrierClientInstance CarrierClient

// NewHTTPCarrierClient creates a carrier client with a per-request timeout
func NewHTTPCarrierClient(baseURL, token string, timeout time.Duration) *HTTPCarrierClient {
	return &HTTPCarrierClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// InitCarrierClient initializes the carrier client from configuration
func InitCarrierClient() CarrierClient {
	cfg := config.GetConfig()
	carrierClientInstance = NewHTTPCarrierClient(cfg.CarrierAPIURL, cfg.CarrierAPIToken, cfg.CarrierTimeout)
	return carrierClientInstance
}

// GetCarrierClient returns the initialized carrier client
func GetCarrierClient() CarrierClient {
	return carrierClientInstance
}

// SetCarrierClient sets the carrier client (primarily for testing)
func SetCarrierClient(client CarrierClient) {
	carrierClientInstance = client
}

// CreateOrderWrapper creates the carrier order and assigns an AWB in one call.
// Any non-2xx reply, or a reply without an AWB, is a *CarrierError.
func (c *HTTPCarrierClient) CreateOrderWrapper(ctx context.Context, payload *CarrierOrderPayload) (*CarrierOrderResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode carrier order: %w", err)
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/orders/create-wrapper", body)
	if err != nil {
		return nil, err
	}

	var resp CarrierOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &CarrierError{StatusCode: status, Body: string(raw)}
	}
	if resp.Status != 1 || len(resp.Shipment) == 0 || resp.Shipment[0].AWB == "" {
		return nil, &CarrierError{StatusCode: status, Body: string(raw)}
	}
	return &resp, nil
}

// TrackOrder fetches the tracking state of awb
func (c *HTTPCarrierClient) TrackOrder(ctx context.Context, awb string) (*CarrierTrackingResponse, error) {
	raw, status, err := c.do(ctx, http.MethodGet, "/tracking/awb/"+url.PathEscape(awb), nil)
	if err != nil {
		return nil, err
	}

	var resp CarrierTrackingResponse
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.Success {
		return nil, &CarrierError{StatusCode: status, Body: string(raw)}
	}
	return &resp, nil
}

func (c *HTTPCarrierClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read carrier response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &CarrierError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.StatusCode, nil
}
