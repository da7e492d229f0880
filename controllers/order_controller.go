package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/services"
	"go.uber.org/zap"
)

// WebhookSignatureHeader carries the HMAC of a gateway webhook body
const WebhookSignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody bounds how much of a webhook body is read
const maxWebhookBody = 1 << 20

// CheckoutRequest represents the request body for placing an order. Either a
// saved address_id or a one-off address is required.
type CheckoutRequest struct {
	AddressID     *uint                  `json:"address_id"`
	Address       *services.AddressInput `json:"address"`
	PaymentMethod string                 `json:"payment_method" binding:"required,oneof=cod online"`
	CouponCode    string                 `json:"coupon_code"`
}

// VerifyPaymentRequest is what the payment sheet hands back after a payment
type VerifyPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id" binding:"required"`
	PaymentID      string `json:"payment_id" binding:"required"`
	Signature      string `json:"signature" binding:"required"`
}

// UpdateOrderStatusRequest represents the request body for an admin status change
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Checkout handles POST /api/v1/orders - turns the cart into an order
func Checkout(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if req.AddressID == nil && req.Address == nil {
		respondErrorWith(c, http.StatusBadRequest, "VALIDATION_ERROR", "An address_id or address is required", nil)
		return
	}

	input := services.CreateOrderInput{
		UserID:        userID,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
	}
	if req.Address != nil {
		address := req.Address.ToShippingAddress("")
		input.Address = &address
	}

	result, err := orderService().CreateOrder(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, result)
}

// ListMyOrders handles GET /api/v1/orders
func ListMyOrders(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	orders, err := orderService().ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

// GetMyOrder handles GET /api/v1/orders/:number
func GetMyOrder(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	order, err := orderService().GetUserOrder(c.Request.Context(), userID, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// CancelMyOrder handles POST /api/v1/orders/:number/cancel
func CancelMyOrder(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	order, err := orderService().CancelOwnOrder(c.Request.Context(), userID, c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// VerifyPayment handles POST /api/v1/payments/verify
func VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := orderService().VerifyPayment(c.Request.Context(), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// PaymentWebhook handles POST /api/v1/payments/webhook. The signature covers
// the raw body, so it is read before any decoding.
func PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondErrorWith(c, http.StatusBadRequest, "INVALID_WEBHOOK", "Could not read webhook body", nil)
		return
	}

	changed, err := orderService().HandleWebhook(c.Request.Context(), body, c.GetHeader(WebhookSignatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Debug("Webhook processed", zap.Bool("order_changed", changed))
	respondOK(c, http.StatusOK, gin.H{"processed": changed})
}

// AdminListOrders handles GET /api/v1/admin/orders
func AdminListOrders(c *gin.Context) {
	filter := services.OrderFilter{
		Status:   c.Query("status"),
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}

	orders, total, err := orderService().ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	page, size := services.NormalizePage(filter.Page, filter.PageSize)
	respondOK(c, http.StatusOK, paginated(orders, total, page, size))
}

// AdminGetOrder handles GET /api/v1/admin/orders/:id
func AdminGetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := orderService().GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// AdminUpdateOrderStatus handles PATCH /api/v1/admin/orders/:id/status
func AdminUpdateOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := orderService().UpdateStatus(c.Request.Context(), id, strings.ToUpper(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// AdminCancelOrder handles POST /api/v1/admin/orders/:id/cancel
func AdminCancelOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := orderService().CancelOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// AdminShipOrder handles POST /api/v1/admin/orders/:id/ship - books the shipment with the carrier
func AdminShipOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	shipment, err := shipmentService().Dispatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, shipment)
}

// AdminTrackShipments handles POST /api/v1/admin/shipments/track - runs one tracking poll
func AdminTrackShipments(c *gin.Context) {
	summary, err := trackingService().PollShipments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, summary)
}

// AdminDashboard handles GET /api/v1/admin/dashboard
func AdminDashboard(c *gin.Context) {
	lowStock := queryInt(c, "low_stock")
	if lowStock <= 0 {
		lowStock = 5
	}

	stats, err := orderService().Dashboard(c.Request.Context(), lowStock)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}
