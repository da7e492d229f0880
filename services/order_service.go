package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/storefront-api/config"
	"github.com/kendall-kelly/storefront-api/logger"
	"github.com/kendall-kelly/storefront-api/models"
	"github.com/kendall-kelly/storefront-api/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Order error codes
const (
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	ErrCodeCartEmpty          = "CART_EMPTY"
	ErrCodeInvalidAddress     = "INVALID_ADDRESS"
	ErrCodeVariantUnavailable = "VARIANT_UNAVAILABLE"
)

// Currency of every order
const Currency = "INR"

// PricingConfig holds the shipping and tax rules. Money is paise, the tax
// rate is in basis points.
type PricingConfig struct {
	ShippingFlatFee       int64
	FreeShippingThreshold int64
	TaxRateBps            int64
}

// PricingFromConfig extracts the pricing rules from cfg
func PricingFromConfig(cfg *config.Config) PricingConfig {
	return PricingConfig{
		ShippingFlatFee:       cfg.ShippingFlatFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		TaxRateBps:            cfg.TaxRateBps,
	}
}

// Totals is the priced breakdown of an order
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// ComputeTotals prices an order. Shipping is free once the subtotal reaches
// the threshold; tax applies to the discounted subtotal and is floored.
func ComputeTotals(subtotal, discount int64, pricing PricingConfig) Totals {
	if discount > subtotal {
		discount = subtotal
	}

	shipping := pricing.ShippingFlatFee
	if pricing.FreeShippingThreshold > 0 && subtotal >= pricing.FreeShippingThreshold {
		shipping = 0
	}

	tax := (subtotal - discount) * pricing.TaxRateBps / 10000

	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal + shipping + tax - discount,
	}
}

// CreateOrderInput is a checkout request. Exactly one of AddressID and
// Address is expected; AddressID wins when both are set.
type CreateOrderInput struct {
	UserID        uint
	AddressID     *uint
	Address       *models.ShippingAddress
	PaymentMethod string
	CouponCode    string
}

// CheckoutResult is returned by CreateOrder. GatewayOrder is set for online
// payments and carries what the client needs to open the payment sheet.
type CheckoutResult struct {
	Order        *models.Order `json:"order"`
	GatewayOrder *GatewayOrder `json:"gateway_order,omitempty"`
	GatewayKeyID string        `json:"gateway_key_id,omitempty"`
}

// OrderServiceDeps wires an OrderService
type OrderServiceDeps struct {
	DB               *gorm.DB
	Pricing          PricingConfig
	Gateway          PaymentGateway
	Mailer           Mailer
	PaymentKeyID     string
	PaymentKeySecret string
	WebhookSecret    string
}

// OrderService assembles orders and reconciles their payments
type OrderService struct {
	db            *gorm.DB
	pricing       PricingConfig
	gateway       PaymentGateway
	mailer        Mailer
	keyID         string
	keySecret     string
	webhookSecret string
	now           func() time.Time
}

// NewOrderService creates an order service
func NewOrderService(deps OrderServiceDeps) *OrderService {
	return &OrderService{
		db:            deps.DB,
		pricing:       deps.Pricing,
		gateway:       deps.Gateway,
		mailer:        deps.Mailer,
		keyID:         deps.PaymentKeyID,
		keySecret:     deps.PaymentKeySecret,
		webhookSecret: deps.WebhookSecret,
		now:           time.Now,
	}
}

// GenerateOrderNumber returns "ORD-YYYYMMDD-XXXXXX" for the given day
func GenerateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// CreateOrder turns the user's cart into an order.
//
// Prices are copied from the live variants and stock is checked but not
// reserved. Online orders stay PENDING until the payment is verified; COD
// orders are confirmed immediately, so their stock and coupon usage are
// committed together with the order.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CheckoutResult, error) {
	method := strings.ToLower(strings.TrimSpace(input.PaymentMethod))
	if method != models.PaymentMethodCOD && method != models.PaymentMethodOnline {
		return nil, utils.NewValidationError("INVALID_PAYMENT_METHOD", "Payment method must be cod or online")
	}

	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, input.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewAuthError("USER_NOT_FOUND", "User not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	var cart []models.CartItem
	if err := db.Preload("Variant.Product").Where("user_id = ?", user.ID).Order("id").Find(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cart) == 0 {
		return nil, utils.NewValidationError(ErrCodeCartEmpty, "Your cart is empty")
	}

	items := make([]models.OrderItem, 0, len(cart))
	var subtotal int64
	for _, line := range cart {
		v := line.Variant
		if v == nil || !v.IsActive || v.Product == nil || !v.Product.IsActive {
			return nil, utils.NewConflictError(ErrCodeVariantUnavailable, "An item in your cart is no longer available")
		}
		if line.Quantity <= 0 {
			return nil, utils.NewValidationError("INVALID_QUANTITY", "Quantity must be greater than zero")
		}
		if err := CheckAvailability(*v, line.Quantity); err != nil {
			return nil, err
		}
		if err := ValidatePackColors(*v, line.SelectedColors); err != nil {
			return nil, err
		}

		lineTotal := v.Price * int64(line.Quantity)
		subtotal += lineTotal
		items = append(items, models.OrderItem{
			VariantID:      v.ID,
			Quantity:       line.Quantity,
			Price:          v.Price,
			Subtotal:       lineTotal,
			SelectedColors: line.SelectedColors,
		})
	}

	address, addressID, err := s.resolveCheckoutAddress(ctx, &user, input)
	if err != nil {
		return nil, err
	}
	addressJSON, err := json.Marshal(address)
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}

	var (
		discount   int64
		couponCode *string
	)
	if code := NormalizeCode(input.CouponCode); code != "" {
		result, err := NewCouponService(s.db).Validate(ctx, code, user.ID, subtotal)
		if err != nil {
			return nil, err
		}
		if result.Coupon != nil && result.Coupon.OneTimePerUser {
			open, err := NewCouponService(s.db).HasOpenOrder(ctx, result.Code, user.ID)
			if err != nil {
				return nil, err
			}
			if open {
				return nil, &CouponError{Reason: CouponAlreadyUsed, Message: "An unpaid order already uses this coupon"}
			}
		}
		discount = result.Discount
		couponCode = &result.Code
	}

	totals := ComputeTotals(subtotal, discount, s.pricing)
	now := s.now()

	order := &models.Order{
		OrderNumber:     GenerateOrderNumber(now),
		UserID:          user.ID,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   method,
		Subtotal:        totals.Subtotal,
		Shipping:        totals.Shipping,
		Tax:             totals.Tax,
		Discount:        totals.Discount,
		Total:           totals.Total,
		AddressID:       addressID,
		ShippingAddress: string(addressJSON),
		CouponCode:      couponCode,
		Items:           items,
	}

	var gatewayOrder *GatewayOrder
	if method == models.PaymentMethodOnline {
		if s.gateway == nil {
			return nil, utils.NewUpstreamError("PAYMENT_GATEWAY_ERROR", "Online payments are not available", nil, nil)
		}
		gatewayOrder, err = s.gateway.CreateOrder(ctx, totals.Total, Currency, order.OrderNumber)
		if err != nil {
			logger.Report("Failed to create gateway order", err, zap.String("order_number", order.OrderNumber))
			return nil, err
		}
		order.GatewayOrderID = &gatewayOrder.ID
	} else {
		order.Status = models.OrderStatusConfirmed
		order.ConfirmedAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if order.Status == models.OrderStatusConfirmed {
			if err := s.applyConfirmationEffects(ctx, tx, order); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_method", method),
		zap.Int64("total", order.Total))

	if order.Status == models.OrderStatusConfirmed {
		s.sendConfirmation(ctx, order.ID)
	}

	result := &CheckoutResult{Order: order, GatewayOrder: gatewayOrder}
	if gatewayOrder != nil {
		result.GatewayKeyID = s.keyID
	}
	return result, nil
}

// ValidatePackColors checks the colour choices of a multi-pack line. Either no
// choice is made or exactly one colour per unit in the pack.
func ValidatePackColors(v models.Variant, colors []string) error {
	if len(colors) == 0 {
		return nil
	}
	if v.PackSize() == 1 {
		return utils.NewValidationError("INVALID_PACK_COLORS", "Colours can only be chosen for multi-packs")
	}
	if len(colors) != v.PackSize() {
		return utils.NewValidationError("INVALID_PACK_COLORS",
			fmt.Sprintf("Choose exactly %d colours for this pack", v.PackSize()))
	}
	for _, c := range colors {
		if strings.TrimSpace(c) == "" {
			return utils.NewValidationError("INVALID_PACK_COLORS", "Colour names cannot be empty")
		}
	}
	return nil
}

func (s *OrderService) resolveCheckoutAddress(ctx context.Context, user *models.User, input CreateOrderInput) (models.ShippingAddress, *uint, error) {
	if input.AddressID != nil {
		var address models.Address
		err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", *input.AddressID, user.ID).First(&address).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ShippingAddress{}, nil, utils.NewValidationError(ErrCodeInvalidAddress, "Address not found")
		}
		if err != nil {
			return models.ShippingAddress{}, nil, fmt.Errorf("failed to load address: %w", err)
		}
		id := address.ID
		return address.ToShippingAddress(user.Email), &id, nil
	}

	if input.Address == nil || !input.Address.Usable() {
		return models.ShippingAddress{}, nil, utils.NewValidationError(ErrCodeInvalidAddress, "A complete shipping address is required")
	}
	address := *input.Address
	address.PackColors = nil
	if address.Email == "" {
		address.Email = user.Email
	}
	return address, nil, nil
}

// VerifyPayment checks the gateway signature for a payment and confirms the
// order. Replays of an already confirmed payment succeed without repeating
// any side effect.
func (s *OrderService) VerifyPayment(ctx context.Context, gatewayOrderID, paymentID, signature string) (*models.Order, error) {
	if !VerifyPaymentSignature(s.keySecret, gatewayOrderID, paymentID, signature) {
		logger.Warn("Payment signature mismatch",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("payment_id", paymentID))
		return nil, utils.NewValidationError(ErrCodeInvalidSignature, "Payment signature verification failed")
	}

	order, err := s.findByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	return s.confirmPayment(ctx, order.ID, paymentID)
}

// webhookEvent is the subset of a gateway webhook that is used
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook processes a signed gateway webhook. payment.captured events
// confirm the order the same way VerifyPayment does; other events are
// acknowledged and ignored. The returned bool reports whether an order
// changed state.
func (s *OrderService) HandleWebhook(ctx context.Context, body []byte, signature string) (bool, error) {
	if !VerifyWebhookSignature(s.webhookSecret, body, signature) {
		return false, utils.NewValidationError(ErrCodeInvalidSignature, "Webhook signature verification failed")
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return false, utils.NewValidationError("INVALID_WEBHOOK", "Webhook body is not valid JSON")
	}
	if event.Event != "payment.captured" {
		logger.Debug("Ignoring webhook event", zap.String("event", event.Event))
		return false, nil
	}

	entity := event.Payload.Payment.Entity
	if entity.OrderID == "" || entity.ID == "" {
		return false, utils.NewValidationError("INVALID_WEBHOOK", "Webhook is missing payment identifiers")
	}

	order, err := s.findByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		return false, err
	}

	before := order.Status
	confirmed, err := s.confirmPayment(ctx, order.ID, entity.ID)
	if err != nil {
		return false, err
	}
	return before == models.OrderStatusPending && confirmed.Status == models.OrderStatusConfirmed, nil
}

// confirmPayment flips a PENDING order to CONFIRMED/PAID and applies its side
// effects in one transaction. The conditional update is the idempotency gate:
// only the caller that wins it deducts stock and records coupon usage.
func (s *OrderService) confirmPayment(ctx context.Context, orderID uint, paymentID string) (*models.Order, error) {
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":             models.OrderStatusConfirmed,
				"payment_status":     models.PaymentStatusPaid,
				"gateway_payment_id": paymentID,
				"confirmed_at":       now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to confirm order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		var order models.Order
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			return fmt.Errorf("failed to reload order: %w", err)
		}
		return s.applyConfirmationEffects(ctx, tx, &order)
	})
	if err != nil {
		logger.Report("Payment confirmation rolled back", err, zap.Uint("order_id", orderID))
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if applied {
		logger.Info("Payment confirmed", zap.String("order_number", order.OrderNumber), zap.String("payment_id", paymentID))
		s.sendConfirmation(ctx, order.ID)
	} else if order.Status == models.OrderStatusCancelled {
		logger.Warn("Payment received for cancelled order",
			zap.String("order_number", order.OrderNumber),
			zap.String("payment_id", paymentID))
	}
	return order, nil
}

// applyConfirmationEffects deducts stock for every item and records the
// coupon usage. Any failure aborts the surrounding transaction.
func (s *OrderService) applyConfirmationEffects(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	stock := NewStockService(tx)
	for _, item := range order.Items {
		if _, err := stock.DeductStock(ctx, item.VariantID, item.Quantity); err != nil {
			return err
		}
	}

	if order.CouponCode == nil || *order.CouponCode == "" {
		return nil
	}

	coupons := NewCouponService(tx)
	coupon, err := coupons.FindByCode(ctx, *order.CouponCode)
	if err != nil {
		return err
	}
	_, err = coupons.RecordUsage(ctx, coupon.ID, order.ID, order.UserID, order.Discount)
	var couponErr *CouponError
	if errors.As(err, &couponErr) && order.PaymentMethod == models.PaymentMethodOnline {
		// Already paid at the discounted total, so the order stands.
		logger.Report("Coupon redeemed past its limits", err,
			zap.String("order_number", order.OrderNumber),
			zap.String("coupon", coupon.Code),
			zap.String("reason", string(couponErr.Reason)))
		return nil
	}
	return err
}

// releaseConfirmationEffects undoes applyConfirmationEffects
func (s *OrderService) releaseConfirmationEffects(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	stock := NewStockService(tx)
	for _, item := range order.Items {
		if err := stock.RestoreStock(ctx, item.VariantID, item.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
	}
	return NewCouponService(tx).ReleaseUsage(ctx, order.ID)
}

var statusRank = map[string]int{
	models.OrderStatusPending:    0,
	models.OrderStatusConfirmed:  1,
	models.OrderStatusProcessing: 2,
	models.OrderStatusShipped:    3,
	models.OrderStatusDelivered:  4,
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward, a PENDING order can only be confirmed or
// cancelled, and nothing leaves DELIVERED or CANCELLED.
func CanTransition(from, to string) bool {
	if from == models.OrderStatusDelivered || from == models.OrderStatusCancelled {
		return false
	}
	if to == models.OrderStatusCancelled {
		return true
	}

	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo || toRank <= fromRank {
		return false
	}
	if from == models.OrderStatusPending {
		return to == models.OrderStatusConfirmed
	}
	return true
}

// UpdateStatus moves an order along its lifecycle on an operator's request.
// Confirmation is reserved for the payment path, and an order with a live
// shipment must be cancelled at the carrier first. A cancelled or returned
// shipment no longer blocks cancellation.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, status string) (*models.Order, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if _, known := statusRank[status]; !known && status != models.OrderStatusCancelled {
		return nil, utils.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown order status %q", status))
	}
	if status == models.OrderStatusConfirmed {
		return nil, utils.NewValidationError(ErrCodeInvalidTransition, "Orders are confirmed by payment, not manually")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Items").Preload("Shipment").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError(ErrCodeOrderNotFound, "Order not found")
			}
			return fmt.Errorf("failed to load order: %w", err)
		}

		if status == models.OrderStatusCancelled && order.Shipment != nil && !order.Shipment.Released() {
			return utils.NewConflictError("SHIPMENT_ACTIVE", "Cancel the shipment with the carrier before cancelling the order")
		}

		_, err := s.applyStatusTx(ctx, tx, &order, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Order status updated", zap.Uint("order_id", orderID), zap.String("status", status))
	return s.GetOrder(ctx, orderID)
}

// CancelOrder cancels an order that has not been delivered, returning its
// stock and coupon usage when it had been confirmed.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, models.OrderStatusCancelled)
}

// CancelOwnOrder lets a customer cancel their order before it is dispatched
func (s *OrderService) CancelOwnOrder(ctx context.Context, userID uint, orderNumber string) (*models.Order, error) {
	order, err := s.GetUserOrder(ctx, userID, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusConfirmed {
		return nil, utils.NewConflictError(ErrCodeInvalidTransition, "This order can no longer be cancelled")
	}
	return s.CancelOrder(ctx, order.ID)
}

// applyStatusTx performs a guarded status change inside tx. order must have
// its Items loaded. It returns false when the order already has status.
func (s *OrderService) applyStatusTx(ctx context.Context, tx *gorm.DB, order *models.Order, status string) (bool, error) {
	if order.Status == status {
		return false, nil
	}
	if !CanTransition(order.Status, status) {
		return false, utils.NewConflictError(ErrCodeInvalidTransition,
			fmt.Sprintf("Cannot move order from %s to %s", order.Status, status))
	}

	updates := map[string]interface{}{"status": status}
	if status == models.OrderStatusCancelled {
		updates["cancelled_at"] = s.now()
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, utils.NewConflictError(ErrCodeInvalidTransition, "Order was modified concurrently")
	}

	if status == models.OrderStatusCancelled && order.Status != models.OrderStatusPending {
		if err := s.releaseConfirmationEffects(ctx, tx, order); err != nil {
			return false, err
		}
	}

	order.Status = status
	return true, nil
}

// GetOrder loads an order with everything needed to display it
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items.Variant.Product").
		Preload("Shipment").
		Preload("User").
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeOrderNotFound, "Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetUserOrder loads an order by number, only if it belongs to userID
func (s *OrderService) GetUserOrder(ctx context.Context, userID uint, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items.Variant.Product").
		Preload("Shipment").
		Where("order_number = ? AND user_id = ?", orderNumber, userID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeOrderNotFound, "Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// ListUserOrders returns a user's orders, newest first
func (s *OrderService) ListUserOrders(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// OrderFilter narrows the admin order list
type OrderFilter struct {
	Status   string
	Page     int
	PageSize int
}

// ListOrders returns a page of orders for the back office and the total count
func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	page, size := NormalizePage(filter.Page, filter.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(filter.Status))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var orders []models.Order
	if err := query.
		Preload("User").
		Preload("Shipment").
		Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// DashboardStats summarizes the store for the back office
type DashboardStats struct {
	OrdersByStatus   map[string]int64 `json:"orders_by_status"`
	PaidRevenue      int64            `json:"paid_revenue"`
	OpenShipments    int64            `json:"open_shipments"`
	LowStockVariants int64            `json:"low_stock_variants"`
}

// Dashboard computes the back office summary. Variants with a calculated
// stock below lowStock count as low.
func (s *OrderService) Dashboard(ctx context.Context, lowStock int) (*DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{OrdersByStatus: map[string]int64{}}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, count(*) as count").Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}
	for _, r := range rows {
		stats.OrdersByStatus[r.Status] = r.Count
	}

	if err := db.Model(&models.Order{}).
		Where("payment_status = ? AND status <> ?", models.PaymentStatusPaid, models.OrderStatusCancelled).
		Select("COALESCE(SUM(total), 0)").
		Scan(&stats.PaidRevenue).Error; err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	if err := db.Model(&models.Shipment{}).
		Where("status NOT IN ?", models.TerminalShipmentStatuses).
		Count(&stats.OpenShipments).Error; err != nil {
		return nil, fmt.Errorf("failed to count shipments: %w", err)
	}

	var variants []models.Variant
	if err := db.Where("is_active = ?", true).Find(&variants).Error; err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}
	for _, v := range variants {
		if CalculatedStock(v) < lowStock {
			stats.LowStockVariants++
		}
	}

	return stats, nil
}

func (s *OrderService) findByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NewNotFoundError(ErrCodeOrderNotFound, "No order for this payment")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func (s *OrderService) sendConfirmation(ctx context.Context, orderID uint) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		logger.Warn("Failed to load order for confirmation email", zap.Uint("order_id", orderID), zap.Error(err))
		return
	}
	if order.User == nil || order.User.Email == "" {
		return
	}
	SendAsync(s.mailer, OrderConfirmationMessage(order, order.User.Email))
}
